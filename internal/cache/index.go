package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"loandocs/internal/model"
)

// Fixed names of the client storage surface.
const (
	MetadataKey     = "loan_documents"
	ContentTable    = "document_contents_cache"
	MigratedFlagKey = "loan_documents_migrated"
	PendingWriteKey = "loan_documents_pending"
)

// bookkeeping reports whether key holds coordinator state rather than catalog
// data. Bookkeeping keys are tiny and never count toward a KV capacity.
func bookkeeping(key string) bool {
	return key == PendingWriteKey || key == MigratedFlagKey
}

// ExternalContentMarker in a metadata record means the payload lives in the content store.
const ExternalContentMarker = "[content stored externally]"

// PreviewLength bounds, in runes, any content kept inline in the metadata index.
const PreviewLength = 200

// ErrCorruptCatalog is returned by Load when the persisted catalog cannot be decoded.
var ErrCorruptCatalog = errors.New("corrupt metadata catalog")

// Preview cuts content to at most PreviewLength runes.
func Preview(content string) string {
	n := 0
	for i := range content {
		if n == PreviewLength {
			return content[:i]
		}
		n++
	}
	return content
}

func sanitize(content string) string {
	if content == ExternalContentMarker {
		return content
	}
	return Preview(content)
}

// MetadataIndex is the in-memory metadata catalog, persisted wholesale as one
// JSON value in a KV medium.
type MetadataIndex struct {
	kv KV

	mu   sync.RWMutex
	docs []model.Document
}

// NewMetadataIndex returns an empty index; call Load to read the persisted catalog.
func NewMetadataIndex(kv KV) *MetadataIndex {
	return &MetadataIndex{kv: kv}
}

// Load replaces the in-memory catalog with the persisted one. A missing catalog
// loads as empty. Records are taken as stored, so legacy full-content records
// survive until migrated.
func (x *MetadataIndex) Load(ctx context.Context) error {
	raw, err := x.kv.Get(ctx, MetadataKey)
	if err != nil {
		return err
	}

	var docs []model.Document
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &docs); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptCatalog, err)
		}
	}

	x.mu.Lock()
	x.docs = docs
	x.mu.Unlock()
	return nil
}

// Reset empties the in-memory catalog without touching the medium.
func (x *MetadataIndex) Reset() {
	x.mu.Lock()
	x.docs = nil
	x.mu.Unlock()
}

// GetAll returns a copy of every record.
func (x *MetadataIndex) GetAll() []model.Document {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]model.Document, len(x.docs))
	copy(out, x.docs)
	return out
}

// GetForLoan returns the records of loanID in catalog order.
func (x *MetadataIndex) GetForLoan(loanID string) []model.Document {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]model.Document, 0)
	for _, d := range x.docs {
		if d.LoanID == loanID {
			out = append(out, d)
		}
	}
	return out
}

// GetByLoanAndType returns the records sharing (loanID, docType).
func (x *MetadataIndex) GetByLoanAndType(loanID, docType string) []model.Document {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []model.Document
	for _, d := range x.docs {
		if d.LoanID == loanID && d.DocType == docType {
			out = append(out, d)
		}
	}
	return out
}

// GetByID returns a copy of the record, or nil.
func (x *MetadataIndex) GetByID(id string) *model.Document {
	x.mu.RLock()
	defer x.mu.RUnlock()

	for _, d := range x.docs {
		if d.ID == id {
			return &d
		}
	}
	return nil
}

// UpsertAll replaces the persisted catalog with docs. Content fields are reduced
// to the external marker or a preview first. Memory changes only once the medium
// accepted the write.
func (x *MetadataIndex) UpsertAll(ctx context.Context, docs []model.Document) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.upsertLocked(ctx, docs)
}

func (x *MetadataIndex) upsertLocked(ctx context.Context, docs []model.Document) error {
	clean := make([]model.Document, len(docs))
	for i, d := range docs {
		d.Content = sanitize(d.Content)
		clean[i] = d
	}

	raw, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := x.kv.Set(ctx, MetadataKey, raw); err != nil {
		return err
	}
	x.docs = clean
	return nil
}

// UpdateStatus sets status and, when given, notes and assignee of one record.
// It returns the updated record, or nil when id is unknown.
func (x *MetadataIndex) UpdateStatus(ctx context.Context, id string, status model.Status, notes, assignedTo *string) (*model.Document, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	idx := -1
	for i, d := range x.docs {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	next := make([]model.Document, len(x.docs))
	copy(next, x.docs)
	model.DocumentPatch{Status: &status, Notes: notes, AssignedTo: assignedTo}.Apply(&next[idx])

	if err := x.upsertLocked(ctx, next); err != nil {
		return nil, err
	}
	updated := x.docs[idx]
	return &updated, nil
}
