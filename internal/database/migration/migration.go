package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Step is one idempotent schema statement.
type Step struct {
	Name string
	SQL  string
}

var steps = []Step{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id              TEXT    PRIMARY KEY,
  loan_id         TEXT    NOT NULL CHECK (length(loan_id) > 0),
  filename        TEXT    NOT NULL CHECK (length(filename) > 0),
  doc_type        TEXT    NOT NULL CHECK (length(doc_type) > 0),
  category        TEXT    NOT NULL DEFAULT '',
  section         TEXT    NOT NULL DEFAULT '',
  subsection      TEXT    NOT NULL DEFAULT '',
  status          TEXT    NOT NULL DEFAULT 'pending',
  date_uploaded   TEXT    NOT NULL,
  file_type       TEXT,
  file_size       INTEGER CHECK (file_size IS NULL OR file_size >= 0),
  is_required     INTEGER NOT NULL DEFAULT 0 CHECK (is_required IN (0, 1)),
  version         INTEGER NOT NULL DEFAULT 1,
  notes           TEXT,
  expiration_date TEXT,
  assigned_to     TEXT
);`,
	},
	{
		Name: "create_table_document_contents",
		SQL: `CREATE TABLE IF NOT EXISTS document_contents (
  document_id TEXT PRIMARY KEY REFERENCES documents (id) ON DELETE CASCADE,
  content     TEXT NOT NULL
);`,
	},
	{
		Name: "create_index_documents_loan_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_loan_id ON documents (loan_id);`,
	},
	{
		Name: "create_index_documents_doc_type",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents (doc_type);`,
	},
	{
		Name: "create_index_documents_category",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_category ON documents (category);`,
	},
	{
		Name: "create_index_documents_loan_id_doc_type",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_loan_id_doc_type ON documents (loan_id, doc_type);`,
	},
}

// Steps returns the ordered schema statements.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// SchemaExists reports whether both document tables are present.
func SchemaExists(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('documents', 'document_contents')`,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check schema tables: %w", err)
	}
	return n == 2, nil
}

// EnsureSchema runs every step. Steps are create-if-absent, so a run that failed
// halfway can simply be repeated.
func EnsureSchema(ctx context.Context, db *sql.DB, log *zap.Logger, dbPath string) error {
	start := time.Now()
	log = log.With(zap.String("component", "database"), zap.String("db_path", dbPath))

	log.Info("db_migration_start")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Debug("db_migration_step",
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}
