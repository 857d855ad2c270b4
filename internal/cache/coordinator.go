package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loandocs/internal/logger"
	"loandocs/internal/model"
	"loandocs/internal/repository"
)

// minKeptOnTrim is the number of newest records a quota trim always keeps, when
// that many exist.
const minKeptOnTrim = 20

// Coordinator ties the metadata index and the content store together. It keeps at
// most one document per (loan, type), degrades under quota pressure instead of
// failing writes, and migrates legacy single-tier catalogs once.
type Coordinator struct {
	kv      KV
	index   *MetadataIndex
	content ContentStore
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time
	newID   func() string

	// mu serializes multi-step writes across both stores.
	mu       sync.Mutex
	migrated bool
}

// NewCoordinator builds a coordinator over kv and content. metrics may be nil.
func NewCoordinator(kv KV, content ContentStore, log *zap.Logger, metrics *Metrics) *Coordinator {
	return &Coordinator{
		kv:      kv,
		index:   NewMetadataIndex(kv),
		content: content,
		log:     logger.OrNop(log).With(zap.String("component", "cache")),
		metrics: metrics,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

var _ repository.DocumentStore = (*Coordinator)(nil)

// Index exposes the underlying metadata index for read-only use.
func (c *Coordinator) Index() *MetadataIndex { return c.index }

// Open loads the catalog, repairs an interrupted write and runs the one-time migration.
func (c *Coordinator) Open(ctx context.Context) error {
	if err := c.index.Load(ctx); err != nil {
		if !errors.Is(err, ErrCorruptCatalog) {
			return err
		}
		c.log.Warn("metadata_catalog_reset", zap.Error(err))
		c.index.Reset()
	}

	flag, err := c.kv.Get(ctx, MigratedFlagKey)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.migrated = flag != nil
	c.mu.Unlock()

	if err := c.Recover(ctx); err != nil {
		return err
	}
	return c.Migrate(ctx)
}

// Recover looks for a write-ahead marker left by an interrupted AddDocument. If the
// marked document never reached the index, its content is an orphan and is removed.
func (c *Coordinator) Recover(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.kv.Get(ctx, PendingWriteKey)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	id := string(raw)
	if c.index.GetByID(id) == nil {
		if err := c.content.Delete(ctx, id); err != nil {
			c.log.Warn("orphaned_content_delete_failed", zap.String("document_id", id), zap.Error(err))
		} else {
			c.log.Info("orphaned_content_removed", zap.String("document_id", id))
		}
	}
	return c.kv.Delete(ctx, PendingWriteKey)
}

// AddDocument writes doc, replacing any document with the same (loan, type). A
// missing id or upload date is filled in on doc.
func (c *Coordinator) AddDocument(ctx context.Context, doc *model.Document) error {
	if doc.LoanID == "" || doc.DocType == "" {
		return fmt.Errorf("%w: loan_id and doc_type are required", repository.ErrConstraintViolation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.prepare(doc)
	c.markPending(ctx, doc.ID)

	var kept, replaced []model.Document
	for _, d := range c.index.GetAll() {
		if d.ID == doc.ID || (d.LoanID == doc.LoanID && d.DocType == doc.DocType) {
			replaced = append(replaced, d)
			continue
		}
		kept = append(kept, d)
	}

	if len(replaced) > 0 {
		c.deleteContent(ctx, replaced, "replaced_content_delete_failed")
		if err := c.index.UpsertAll(ctx, kept); err != nil && !errors.Is(err, ErrQuotaExceeded) {
			return err
		}
		c.log.Debug("documents_replaced",
			zap.String("loan_id", doc.LoanID),
			zap.String("doc_type", doc.DocType),
			zap.Int("count", len(replaced)),
		)
	}

	rec := *doc
	rec.Content = c.storeContent(ctx, doc.ID, doc.Content)

	if err := c.persist(ctx, kept, rec); err != nil {
		return err
	}
	c.clearPending(ctx)
	return nil
}

// Insert is AddDocument in DocumentStore form.
func (c *Coordinator) Insert(ctx context.Context, doc *model.Document) (string, error) {
	if err := c.AddDocument(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// Migrate moves oversized legacy content out of the metadata index, once. Content
// goes to the content store when possible and is otherwise cut to a preview.
func (c *Coordinator) Migrate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.migrated {
		return nil
	}
	flag, err := c.kv.Get(ctx, MigratedFlagKey)
	if err != nil {
		return err
	}
	if flag != nil {
		c.migrated = true
		return nil
	}

	docs := c.index.GetAll()
	moved, previewed := 0, 0
	for i := range docs {
		content := docs[i].Content
		if content == ExternalContentMarker || utf8.RuneCountInString(content) <= PreviewLength {
			continue
		}
		if err := c.content.Put(ctx, docs[i].ID, content); err != nil {
			c.log.Warn("migration_content_write_failed", zap.String("document_id", docs[i].ID), zap.Error(err))
			docs[i].Content = Preview(content)
			previewed++
			continue
		}
		docs[i].Content = ExternalContentMarker
		moved++
	}

	if moved+previewed > 0 {
		if err := c.index.UpsertAll(ctx, docs); err != nil {
			return fmt.Errorf("persist migrated catalog: %w", err)
		}
	}
	if err := c.kv.Set(ctx, MigratedFlagKey, []byte("true")); err != nil {
		return fmt.Errorf("set migration flag: %w", err)
	}
	c.migrated = true

	c.log.Info("cache_migration_complete",
		zap.Int("records", len(docs)),
		zap.Int("moved", moved),
		zap.Int("previewed", previewed),
	)
	return nil
}

// TransferToLoan re-files every document of fromLoanID under toLoanID. Moved
// documents replace documents of the same type already on toLoanID.
func (c *Coordinator) TransferToLoan(ctx context.Context, fromLoanID, toLoanID string) (int, error) {
	if fromLoanID == toLoanID {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.index.GetAll()
	movedTypes := map[string]bool{}
	for _, d := range all {
		if d.LoanID == fromLoanID {
			movedTypes[d.DocType] = true
		}
	}
	if len(movedTypes) == 0 {
		return 0, nil
	}

	next := make([]model.Document, 0, len(all))
	var displaced []model.Document
	moved := 0
	for _, d := range all {
		switch {
		case d.LoanID == fromLoanID:
			d.LoanID = toLoanID
			moved++
		case d.LoanID == toLoanID && movedTypes[d.DocType]:
			displaced = append(displaced, d)
			continue
		}
		next = append(next, d)
	}

	if err := c.index.UpsertAll(ctx, next); err != nil {
		return 0, err
	}
	c.deleteContent(ctx, displaced, "displaced_content_delete_failed")
	return moved, nil
}

// GetStats aggregates the loan's documents.
func (c *Coordinator) GetStats(loanID string) model.Stats {
	return model.ComputeStats(loanID, c.index.GetForLoan(loanID))
}

// GetByID returns nil, nil for an unknown id.
func (c *Coordinator) GetByID(ctx context.Context, id string, includeContent bool) (*model.Document, error) {
	d := c.index.GetByID(id)
	if d == nil {
		return nil, nil
	}
	if err := c.resolveContent(ctx, d, includeContent); err != nil {
		return nil, err
	}
	return d, nil
}

// GetForLoan returns the loan's documents, newest upload first.
func (c *Coordinator) GetForLoan(ctx context.Context, loanID string, includeContent bool) ([]model.Document, error) {
	docs := c.index.GetForLoan(loanID)
	sortNewestFirst(docs)
	for i := range docs {
		if err := c.resolveContent(ctx, &docs[i], includeContent); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// CountForLoan counts the loan's documents in the index.
func (c *Coordinator) CountForLoan(_ context.Context, loanID string) (int, error) {
	return len(c.index.GetForLoan(loanID)), nil
}

// Update applies a sparse patch. Content goes through the content store like any
// other write; moving a document onto an occupied (loan, type) replaces the occupant.
func (c *Coordinator) Update(ctx context.Context, patch model.DocumentPatch) (bool, error) {
	if patch.IsEmpty() {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.index.GetByID(patch.ID)
	if cur == nil {
		return false, nil
	}

	updated := *cur
	content := patch.Content
	patch.Content = nil
	patch.Apply(&updated)

	var kept, displaced []model.Document
	for _, d := range c.index.GetAll() {
		if d.ID == updated.ID {
			continue
		}
		if d.LoanID == updated.LoanID && d.DocType == updated.DocType {
			displaced = append(displaced, d)
			continue
		}
		kept = append(kept, d)
	}

	if content != nil {
		if *content == "" {
			c.deleteContent(ctx, []model.Document{updated}, "cleared_content_delete_failed")
			updated.Content = ""
		} else {
			updated.Content = c.storeContent(ctx, updated.ID, *content)
		}
	}

	if err := c.persist(ctx, kept, updated); err != nil {
		return false, err
	}
	c.deleteContent(ctx, displaced, "displaced_content_delete_failed")
	return true, nil
}

// UpdateStatus changes status, and optionally notes and assignee, of one document.
// It returns nil when id is unknown.
func (c *Coordinator) UpdateStatus(ctx context.Context, id string, status model.Status, notes, assignedTo *string) (*model.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.UpdateStatus(ctx, id, status, notes, assignedTo)
}

// Delete removes the document's content, then its metadata.
func (c *Coordinator) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.index.GetByID(id)
	if cur == nil {
		return false, nil
	}
	c.deleteContent(ctx, []model.Document{*cur}, "content_delete_failed")

	all := c.index.GetAll()
	next := make([]model.Document, 0, len(all))
	for _, d := range all {
		if d.ID != id {
			next = append(next, d)
		}
	}
	if err := c.index.UpsertAll(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// Clear drops every cached document.
func (c *Coordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.content.Clear(ctx); err != nil {
		return err
	}
	return c.index.UpsertAll(ctx, nil)
}

// persist writes base plus rec. On ErrQuotaExceeded it retries once with only the
// newest records of base, then falls back to rec alone.
func (c *Coordinator) persist(ctx context.Context, base []model.Document, rec model.Document) error {
	err := c.index.UpsertAll(ctx, appendRecord(base, rec))
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	c.metrics.trimmed()
	trimmed, dropped := TrimToNewest(base)
	c.log.Warn("metadata_quota_exceeded",
		zap.Int("records", len(base)),
		zap.Int("kept", len(trimmed)),
		zap.String("document_id", rec.ID),
	)

	err = c.index.UpsertAll(ctx, appendRecord(trimmed, rec))
	if err == nil {
		c.deleteContent(ctx, dropped, "trimmed_content_delete_failed")
		return nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	c.metrics.fellBack()
	c.log.Error("metadata_quota_fallback",
		zap.Int("records_lost", len(base)),
		zap.String("document_id", rec.ID),
	)
	if err := c.index.UpsertAll(ctx, []model.Document{rec}); err != nil {
		return err
	}
	c.deleteContent(ctx, base, "trimmed_content_delete_failed")
	return nil
}

// TrimToNewest keeps the newest records: the larger of two thirds of docs and the
// newest twenty. It returns the kept and the dropped records.
func TrimToNewest(docs []model.Document) (kept, dropped []model.Document) {
	n := len(docs)
	keep := max(n-n/3, min(n, minKeptOnTrim))

	sorted := make([]model.Document, n)
	copy(sorted, docs)
	sortNewestFirst(sorted)
	return sorted[:keep], sorted[keep:]
}

// storeContent writes content to the content store and returns what the metadata
// record should carry instead.
func (c *Coordinator) storeContent(ctx context.Context, id, content string) string {
	if content == "" {
		return ""
	}
	if err := c.content.Put(ctx, id, content); err != nil {
		c.metrics.contentFellBack()
		c.log.Warn("content_store_write_failed", zap.String("document_id", id), zap.Error(err))
		return Preview(content)
	}
	return ExternalContentMarker
}

func (c *Coordinator) resolveContent(ctx context.Context, d *model.Document, include bool) error {
	if !include {
		d.Content = ""
		return nil
	}
	if d.Content != ExternalContentMarker {
		return nil
	}

	content, found, err := c.content.Get(ctx, d.ID)
	if err != nil {
		return err
	}
	if !found {
		c.log.Warn("content_missing", zap.String("document_id", d.ID))
	}
	d.Content = content
	return nil
}

// deleteContent removes content best-effort. Failures are logged, never returned.
func (c *Coordinator) deleteContent(ctx context.Context, docs []model.Document, event string) {
	for _, d := range docs {
		if err := c.content.Delete(ctx, d.ID); err != nil {
			c.log.Warn(event, zap.String("document_id", d.ID), zap.Error(err))
		}
	}
}

func (c *Coordinator) markPending(ctx context.Context, id string) {
	if err := c.kv.Set(ctx, PendingWriteKey, []byte(id)); err != nil {
		c.log.Debug("pending_marker_write_failed", zap.String("document_id", id), zap.Error(err))
	}
}

func (c *Coordinator) clearPending(ctx context.Context) {
	if err := c.kv.Delete(ctx, PendingWriteKey); err != nil {
		c.log.Debug("pending_marker_clear_failed", zap.Error(err))
	}
}

func (c *Coordinator) prepare(d *model.Document) {
	if d.ID == "" {
		d.ID = c.newID()
	}
	if d.DateUploaded.IsZero() {
		d.DateUploaded = c.now().UTC()
	}
	if d.Status == "" {
		d.Status = model.StatusPending
	}
	if d.Version == 0 {
		d.Version = 1
	}
}

func appendRecord(base []model.Document, rec model.Document) []model.Document {
	out := make([]model.Document, 0, len(base)+1)
	out = append(out, base...)
	return append(out, rec)
}

func sortNewestFirst(docs []model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].DateUploaded.Equal(docs[j].DateUploaded) {
			return docs[i].DateUploaded.After(docs[j].DateUploaded)
		}
		return docs[i].ID > docs[j].ID
	})
}
