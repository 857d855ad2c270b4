package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	_ "modernc.org/sqlite"

	"loandocs/internal/config"
	"loandocs/internal/database/migration"
	"loandocs/internal/logger"
)

var (
	// ErrNotInitialized is returned by every operation attempted before Initialize succeeded.
	ErrNotInitialized = errors.New("database not initialized")
	// ErrSchemaMissing is returned when a read-only database lacks the document tables.
	ErrSchemaMissing = errors.New("database schema missing")
)

var sqlOpen = sql.Open

var (
	registerOnce sync.Once
	driverName   string
	registerErr  error
)

// otelDriver wraps the modernc sqlite driver with otelsql once per process.
func otelDriver() (string, error) {
	registerOnce.Do(func() {
		driverName, registerErr = otelsql.Register("sqlite",
			otelsql.WithAttributes(semconv.DBSystemSqlite),
		)
	})
	if registerErr != nil {
		return "", fmt.Errorf("failed to register otelsql: %w", registerErr)
	}
	return driverName, nil
}

// BuildSQLiteDSN constructs a modernc sqlite URI carrying per-connection pragmas.
// Example: file:data/loandocs.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)
func BuildSQLiteDSN(c config.DatabaseConfig) (string, error) {
	if c.Path == "" {
		return "", fmt.Errorf("invalid database config: path is required")
	}

	q := url.Values{}
	if c.BusyTimeoutMs > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeoutMs))
	}
	q.Add("_pragma", "foreign_keys(1)")
	if c.ReadOnly {
		q.Set("mode", "ro")
	} else if c.WAL {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}

	return "file:" + c.Path + "?" + q.Encode(), nil
}

// Manager owns the lifecycle of the relational store's session.
// It is safe for concurrent use.
type Manager struct {
	cfg config.DatabaseConfig
	log *zap.Logger
	now func() time.Time

	mu sync.Mutex
	db *sql.DB
}

// NewManager returns a Manager that has not opened anything yet.
func NewManager(cfg config.DatabaseConfig, log *zap.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		log: logger.OrNop(log).With(zap.String("component", "database")),
		now: time.Now,
	}
}

// Initialize opens the database and creates the schema. Calling it again after a
// success is a no-op. On failure the manager stays uninitialized.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return nil
	}

	dsn, err := BuildSQLiteDSN(m.cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}

	driver, err := otelDriver()
	if err != nil {
		return err
	}

	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return fmt.Errorf("sql open: %w", err)
	}

	if m.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(m.cfg.MaxOpenConns)
	}
	if m.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(m.cfg.MaxIdleConns)
	}
	if m.cfg.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(m.cfg.ConnMaxLifetimeSec) * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("db ping: %w", err)
	}

	if m.cfg.ReadOnly {
		ok, err := migration.SchemaExists(ctx, db)
		if err == nil && !ok {
			err = ErrSchemaMissing
		}
		if err != nil {
			_ = db.Close()
			return err
		}
	} else if err := migration.EnsureSchema(ctx, db, m.log, m.cfg.Path); err != nil {
		_ = db.Close()
		return err
	}

	m.db = db
	m.log.Info("database_initialized",
		zap.String("db_path", m.cfg.Path),
		zap.Bool("wal", m.cfg.WAL && !m.cfg.ReadOnly),
		zap.Bool("read_only", m.cfg.ReadOnly),
	)
	return nil
}

// DB returns the live session, or ErrNotInitialized.
func (m *Manager) DB() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil, ErrNotInitialized
	}
	return m.db, nil
}

// PingContext lets the manager serve as a health-check dependency.
func (m *Manager) PingContext(ctx context.Context) error {
	db, err := m.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close releases the session. Closing an already closed manager is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		return fmt.Errorf("db close: %w", err)
	}
	m.log.Info("database_closed")
	return nil
}

// Backup writes a point-in-time copy of the database into the backup directory and
// returns its path. The copy is published atomically, so a reader never sees a
// partial file.
func (m *Manager) Backup(ctx context.Context, label string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return "", ErrNotInitialized
	}

	if err := os.MkdirAll(m.cfg.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	final := filepath.Join(m.cfg.BackupDir, backupName(m.cfg.Path, label, m.now()))
	tmp := final + ".tmp"
	_ = os.Remove(tmp)

	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("vacuum into: %w", err)
	}
	if err := atomic.ReplaceFile(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publish backup: %w", err)
	}

	m.log.Info("database_backup_created", zap.String("backup_path", final))
	return final, nil
}

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func backupName(dbPath, label string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	ts := now.UTC().Format("20060102T150405.000000000Z")

	label = strings.Trim(unsafeLabelChars.ReplaceAllString(label, "_"), "_")
	if label == "" {
		return fmt.Sprintf("%s-%s.db", base, ts)
	}
	return fmt.Sprintf("%s-%s-%s.db", base, label, ts)
}
