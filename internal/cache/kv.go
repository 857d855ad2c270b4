package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"loandocs/internal/database"
)

// ErrQuotaExceeded is returned by KV.Set when the write would exceed the medium's capacity.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// KV is the small synchronous medium behind the metadata index.
type KV interface {
	// Get returns nil, nil when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SQLiteKV stores values in the kv table. A positive capacity bounds the total
// size of all stored catalog values in bytes.
type SQLiteKV struct {
	db       *sql.DB
	capacity int64
}

// NewSQLiteKV returns a KV over db. capacity <= 0 means unbounded.
func NewSQLiteKV(db *sql.DB, capacity int64) *SQLiteKV {
	return &SQLiteKV{db: db, capacity: capacity}
}

var _ KV = (*SQLiteKV)(nil)

// Get returns the value under key, or nil when it is absent.
func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, nil
}

// Set upserts key. It fails with ErrQuotaExceeded when the write would push the
// catalog past capacity.
func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		if s.capacity > 0 && !bookkeeping(key) {
			var used int64
			err := tx.QueryRowContext(ctx, `
				SELECT COALESCE(SUM(length(value)), 0) FROM kv
				WHERE key <> ? AND key NOT IN (?, ?)
			`, key, PendingWriteKey, MigratedFlagKey).Scan(&used)
			if err != nil {
				return fmt.Errorf("kv usage: %w", err)
			}
			if used+int64(len(value)) > s.capacity {
				return fmt.Errorf("kv set %s (%d bytes, %d of %d used): %w",
					key, len(value), used, s.capacity, ErrQuotaExceeded)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("kv set %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
