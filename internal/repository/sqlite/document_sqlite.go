package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"loandocs/internal/database"
	"loandocs/internal/model"
	"loandocs/internal/repository"
)

// TimeLayout is fixed width, so text order in SQLite equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var errIDRequired = errors.New("document id is required")

// SessionProvider hands out the live session. *database.Manager implements it and
// fails with database.ErrNotInitialized before Initialize.
type SessionProvider interface {
	DB() (*sql.DB, error)
}

type staticSession struct{ db *sql.DB }

func (s staticSession) DB() (*sql.DB, error) { return s.db, nil }

// FromDB adapts an already opened handle into a SessionProvider.
func FromDB(db *sql.DB) SessionProvider { return staticSession{db: db} }

// DocumentSQLite is the relational document store. Metadata lives in documents,
// payloads in document_contents; both are written in one transaction.
type DocumentSQLite struct {
	sessions SessionProvider
	now      func() time.Time
	newID    func() string
}

// NewDocumentSQLite creates a new DocumentSQLite repository.
func NewDocumentSQLite(sessions SessionProvider) *DocumentSQLite {
	return &DocumentSQLite{
		sessions: sessions,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

var (
	_ repository.DocumentStore = (*DocumentSQLite)(nil)
	_ repository.BulkInserter  = (*DocumentSQLite)(nil)
)

const (
	documentColumns = `id, loan_id, filename, doc_type, category, section, subsection, status, date_uploaded,
		file_type, file_size, is_required, version, notes, expiration_date, assigned_to`

	insertDocumentSQL = `INSERT INTO documents (` + documentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertContentSQL = `INSERT INTO document_contents (document_id, content) VALUES (?, ?)`

	upsertContentSQL = `INSERT INTO document_contents (document_id, content) VALUES (?, ?)
		ON CONFLICT (document_id) DO UPDATE SET content = excluded.content`

	selectContentSQL = `SELECT content FROM document_contents WHERE document_id = ?`
)

// Insert writes the metadata row and, when content is non-empty, the content row.
// Both commit or neither does.
func (r *DocumentSQLite) Insert(ctx context.Context, doc *model.Document) (string, error) {
	db, err := r.sessions.DB()
	if err != nil {
		return "", err
	}
	r.prepare(doc)

	err = database.WithTx(ctx, db, nil, func(ctx context.Context, tx database.DBTX) error {
		if _, err := tx.ExecContext(ctx, insertDocumentSQL, documentArgs(doc)...); err != nil {
			return wrapErr("insert document", err)
		}
		if doc.Content != "" {
			if _, err := tx.ExecContext(ctx, insertContentSQL, doc.ID, doc.Content); err != nil {
				return wrapErr("insert content", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

// BulkInsert writes every document inside one transaction. A single failure rolls
// back the whole batch.
func (r *DocumentSQLite) BulkInsert(ctx context.Context, docs []model.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	db, err := r.sessions.DB()
	if err != nil {
		return 0, err
	}

	err = database.WithTx(ctx, db, nil, func(ctx context.Context, tx database.DBTX) error {
		docStmt, err := tx.PrepareContext(ctx, insertDocumentSQL)
		if err != nil {
			return fmt.Errorf("prepare insert document: %w", err)
		}
		defer docStmt.Close()

		contentStmt, err := tx.PrepareContext(ctx, insertContentSQL)
		if err != nil {
			return fmt.Errorf("prepare insert content: %w", err)
		}
		defer contentStmt.Close()

		for i := range docs {
			d := &docs[i]
			r.prepare(d)
			if _, err := docStmt.ExecContext(ctx, documentArgs(d)...); err != nil {
				return wrapErr(fmt.Sprintf("bulk insert document %d", i), err)
			}
			if d.Content != "" {
				if _, err := contentStmt.ExecContext(ctx, d.ID, d.Content); err != nil {
					return wrapErr(fmt.Sprintf("bulk insert content %d", i), err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// GetByID returns nil, nil when the document does not exist.
func (r *DocumentSQLite) GetByID(ctx context.Context, id string, includeContent bool) (*model.Document, error) {
	db, err := r.sessions.DB()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	if includeContent {
		if d.Content, err = r.content(ctx, db, id); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// GetForLoan returns the loan's documents, newest first. Content is loaded per row
// only when asked for.
func (r *DocumentSQLite) GetForLoan(ctx context.Context, loanID string, includeContent bool) ([]model.Document, error) {
	db, err := r.sessions.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE loan_id = ? ORDER BY date_uploaded DESC, id DESC`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The session may hold a single connection; release it before the content lookups.
	rows.Close()

	if includeContent {
		for i := range items {
			if items[i].Content, err = r.content(ctx, db, items[i].ID); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

// CountForLoan returns the number of documents owned by loanID.
func (r *DocumentSQLite) CountForLoan(ctx context.Context, loanID string) (int, error) {
	db, err := r.sessions.DB()
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE loan_id = ?`, loanID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// UpdateByID is the (id, patch) form of Update.
func (r *DocumentSQLite) UpdateByID(ctx context.Context, id string, patch model.DocumentPatch) (bool, error) {
	patch.ID = id
	return r.Update(ctx, patch)
}

// Update writes only the fields present in patch. Content is upserted. The result
// is false when the document does not exist or the patch is empty.
func (r *DocumentSQLite) Update(ctx context.Context, patch model.DocumentPatch) (bool, error) {
	if patch.ID == "" {
		return false, errIDRequired
	}
	if patch.IsEmpty() {
		return false, nil
	}
	db, err := r.sessions.DB()
	if err != nil {
		return false, err
	}

	applied := false
	err = database.WithTx(ctx, db, nil, func(ctx context.Context, tx database.DBTX) error {
		if patch.HasMetadata() {
			sets, args := patchAssignments(patch)
			res, err := tx.ExecContext(ctx,
				`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, append(args, patch.ID)...)
			if err != nil {
				return wrapErr("update document", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
		} else {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, patch.ID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("check document: %w", err)
			}
		}

		if patch.Content != nil {
			if _, err := tx.ExecContext(ctx, upsertContentSQL, patch.ID, *patch.Content); err != nil {
				return wrapErr("upsert content", err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Delete removes the metadata row; the foreign key cascade removes its content.
func (r *DocumentSQLite) Delete(ctx context.Context, id string) (bool, error) {
	db, err := r.sessions.DB()
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, wrapErr("delete document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TransferToLoan re-files every document of fromLoanID under toLoanID.
func (r *DocumentSQLite) TransferToLoan(ctx context.Context, fromLoanID, toLoanID string) (int, error) {
	db, err := r.sessions.DB()
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, `UPDATE documents SET loan_id = ? WHERE loan_id = ?`, toLoanID, fromLoanID)
	if err != nil {
		return 0, wrapErr("transfer documents", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *DocumentSQLite) prepare(d *model.Document) {
	if d.ID == "" {
		d.ID = r.newID()
	}
	if d.DateUploaded.IsZero() {
		d.DateUploaded = r.now().UTC()
	}
	if d.Status == "" {
		d.Status = model.StatusPending
	}
	if d.Version == 0 {
		d.Version = 1
	}
}

func (r *DocumentSQLite) content(ctx context.Context, db database.DBTX, id string) (string, error) {
	var c string
	err := db.QueryRowContext(ctx, selectContentSQL, id).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get content: %w", err)
	}
	return c, nil
}

func documentArgs(d *model.Document) []any {
	return []any{
		d.ID,
		d.LoanID,
		d.Filename,
		d.DocType,
		d.Category,
		d.Section,
		d.Subsection,
		string(d.Status),
		FormatTime(d.DateUploaded),
		nullString(d.FileType),
		nullInt(d.FileSize),
		boolToInt(d.IsRequired),
		d.Version,
		nullString(d.Notes),
		nullTime(d.ExpirationDate),
		nullString(d.AssignedTo),
	}
}

func patchAssignments(p model.DocumentPatch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if p.LoanID != nil {
		add("loan_id", *p.LoanID)
	}
	if p.Filename != nil {
		add("filename", *p.Filename)
	}
	if p.DocType != nil {
		add("doc_type", *p.DocType)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.Section != nil {
		add("section", *p.Section)
	}
	if p.Subsection != nil {
		add("subsection", *p.Subsection)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.FileType != nil {
		add("file_type", nullString(*p.FileType))
	}
	if p.FileSize != nil {
		add("file_size", nullInt(*p.FileSize))
	}
	if p.IsRequired != nil {
		add("is_required", boolToInt(*p.IsRequired))
	}
	if p.Version != nil {
		add("version", *p.Version)
	}
	if p.Notes != nil {
		add("notes", nullString(*p.Notes))
	}
	if p.ExpirationDate != nil || p.ClearExpirationDate {
		add("expiration_date", nullTime(p.ExpirationDate))
	}
	if p.AssignedTo != nil {
		add("assigned_to", nullString(*p.AssignedTo))
	}
	return sets, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (model.Document, error) {
	var (
		d          model.Document
		status     string
		uploaded   string
		fileType   sql.NullString
		fileSize   sql.NullInt64
		isRequired int64
		notes      sql.NullString
		expiration sql.NullString
		assignedTo sql.NullString
	)
	if err := s.Scan(
		&d.ID,
		&d.LoanID,
		&d.Filename,
		&d.DocType,
		&d.Category,
		&d.Section,
		&d.Subsection,
		&status,
		&uploaded,
		&fileType,
		&fileSize,
		&isRequired,
		&d.Version,
		&notes,
		&expiration,
		&assignedTo,
	); err != nil {
		return model.Document{}, err
	}

	var err error
	if d.DateUploaded, err = ParseTime(uploaded); err != nil {
		return model.Document{}, fmt.Errorf("parse date_uploaded: %w", err)
	}
	if expiration.Valid {
		t, err := ParseTime(expiration.String)
		if err != nil {
			return model.Document{}, fmt.Errorf("parse expiration_date: %w", err)
		}
		d.ExpirationDate = &t
	}
	d.Status = model.Status(status)
	d.FileType = fileType.String
	d.FileSize = fileSize.Int64
	d.IsRequired = isRequired != 0
	d.Notes = notes.String
	d.AssignedTo = assignedTo.String
	return d, nil
}

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IsConstraintError reports whether err carries an SQLite constraint failure.
func IsConstraintError(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func wrapErr(op string, err error) error {
	if IsConstraintError(err) {
		return fmt.Errorf("%s: %w: %w", op, repository.ErrConstraintViolation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
