package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ContentStore holds large payloads keyed by document id, apart from the metadata
// index. Get on a missing id reports found=false with a nil error.
type ContentStore interface {
	Put(ctx context.Context, id, content string) error
	Get(ctx context.Context, id string) (content string, found bool, err error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// SQLiteContentStore keeps payloads in the document_contents_cache table.
type SQLiteContentStore struct {
	db *sql.DB
}

// NewSQLiteContentStore returns a ContentStore over db.
func NewSQLiteContentStore(db *sql.DB) *SQLiteContentStore {
	return &SQLiteContentStore{db: db}
}

var _ ContentStore = (*SQLiteContentStore)(nil)

// Put upserts the payload for id.
func (s *SQLiteContentStore) Put(ctx context.Context, id, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_contents_cache (id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, id, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put content %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteContentStore) Get(ctx context.Context, id string) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM document_contents_cache WHERE id = ?`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get content %s: %w", id, err)
	}
	return content, true, nil
}

func (s *SQLiteContentStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_contents_cache WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteContentStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_contents_cache`); err != nil {
		return fmt.Errorf("clear content: %w", err)
	}
	return nil
}
