package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"loandocs/internal/storage"
)

const objectContentType = "text/html; charset=utf-8"

// ObjectContentStore keeps payloads in S3-compatible object storage under
// document_contents_cache/<id>.
type ObjectContentStore struct {
	store storage.Storage
}

// NewObjectContentStore returns a ContentStore over store.
func NewObjectContentStore(store storage.Storage) *ObjectContentStore {
	return &ObjectContentStore{store: store}
}

var _ ContentStore = (*ObjectContentStore)(nil)

func objectKey(id string) string { return ContentTable + "/" + id }

func (o *ObjectContentStore) Put(ctx context.Context, id, content string) error {
	_, err := o.store.Put(ctx, objectKey(id), strings.NewReader(content), storage.PutObjectOptions{
		Size:        int64(len(content)),
		ContentType: objectContentType,
		Metadata:    map[string]string{"document-id": id},
	})
	if err != nil {
		return fmt.Errorf("put content %s: %w", id, err)
	}
	return nil
}

func (o *ObjectContentStore) Get(ctx context.Context, id string) (string, bool, error) {
	rc, _, err := o.store.Get(ctx, objectKey(id))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get content %s: %w", id, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", false, fmt.Errorf("read content %s: %w", id, err)
	}
	return string(b), true, nil
}

func (o *ObjectContentStore) Delete(ctx context.Context, id string) error {
	if err := o.store.Delete(ctx, objectKey(id)); err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}
	return nil
}

func (o *ObjectContentStore) Clear(ctx context.Context) error {
	if err := o.store.RemovePrefix(ctx, ContentTable+"/"); err != nil {
		return fmt.Errorf("clear content: %w", err)
	}
	return nil
}
