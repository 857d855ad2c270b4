package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"loandocs/internal/logger"
	"loandocs/internal/model"
	"loandocs/internal/repository"
)

var (
	ErrIDRequired     = errors.New("id is required")
	ErrLoanIDRequired = errors.New("loan id is required")
	ErrNotFound       = errors.New("document not found")
	ErrValidation     = errors.New("validation failed")
)

// CreateDocumentRequest is the payload for a new document.
type CreateDocumentRequest struct {
	ID             string       `json:"id" validate:"omitempty,max=128"`
	LoanID         string       `json:"loan_id" validate:"required,max=128"`
	Filename       string       `json:"filename" validate:"required,max=512"`
	DocType        string       `json:"doc_type" validate:"required,max=128"`
	Category       string       `json:"category" validate:"max=128"`
	Section        string       `json:"section" validate:"max=128"`
	Subsection     string       `json:"subsection" validate:"max=128"`
	Status         model.Status `json:"status" validate:"omitempty,docstatus"`
	DateUploaded   time.Time    `json:"date_uploaded"`
	FileType       string       `json:"file_type" validate:"max=128"`
	FileSize       int64        `json:"file_size" validate:"gte=0"`
	IsRequired     bool         `json:"is_required"`
	Version        int          `json:"version" validate:"gte=0"`
	Notes          string       `json:"notes"`
	ExpirationDate *time.Time   `json:"expiration_date"`
	AssignedTo     string       `json:"assigned_to" validate:"max=128"`
	Content        string       `json:"content"`
}

// Document converts the request into a model document.
func (r CreateDocumentRequest) Document() *model.Document {
	return &model.Document{
		ID:             r.ID,
		LoanID:         r.LoanID,
		Filename:       r.Filename,
		DocType:        r.DocType,
		Category:       r.Category,
		Section:        r.Section,
		Subsection:     r.Subsection,
		Status:         r.Status,
		DateUploaded:   r.DateUploaded,
		FileType:       r.FileType,
		FileSize:       r.FileSize,
		IsRequired:     r.IsRequired,
		Version:        r.Version,
		Notes:          r.Notes,
		ExpirationDate: r.ExpirationDate,
		AssignedTo:     r.AssignedTo,
		Content:        r.Content,
	}
}

// DocumentService defines the use cases for handling loan documents.
type DocumentService interface {
	// Create validates and stores a document, returning it with generated fields filled in.
	Create(ctx context.Context, req CreateDocumentRequest) (*model.Document, error)

	// BulkCreate stores all documents or none when the store supports it.
	BulkCreate(ctx context.Context, reqs []CreateDocumentRequest) (int, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string, includeContent bool) (*model.Document, error)

	// ListForLoan returns the loan's documents, newest first.
	ListForLoan(ctx context.Context, loanID string, includeContent bool) ([]model.Document, error)

	CountForLoan(ctx context.Context, loanID string) (int, error)

	// Update applies a sparse patch and returns the updated document.
	Update(ctx context.Context, patch model.DocumentPatch) (*model.Document, error)

	Delete(ctx context.Context, id string) error

	// TransferToLoan re-files every document of fromLoanID under toLoanID.
	TransferToLoan(ctx context.Context, fromLoanID, toLoanID string) (int, error)

	Stats(ctx context.Context, loanID string) (model.Stats, error)
}

var tracer = otel.Tracer("loandocs/internal/service")

func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "DocumentService."+op, trace.WithAttributes(attrs...))
}

// fail marks span as failed and returns err unchanged.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// statsProvider is implemented by stores that aggregate without loading documents.
type statsProvider interface {
	GetStats(loanID string) model.Stats
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store     repository.DocumentStore
	validator *validator.Validate
	log       *zap.Logger
}

// NewDocumentService constructs a new DocumentService. validate and log may be nil.
func NewDocumentService(store repository.DocumentStore, validate *validator.Validate, log *zap.Logger) DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	svc := &documentService{store: store, validator: validate, log: logger.OrNop(log)}
	_ = svc.validator.RegisterValidation("docstatus", func(fl validator.FieldLevel) bool {
		return model.Status(fl.Field().String()).Valid()
	})
	return svc
}

func (s *documentService) validate(req any) error {
	if err := s.validator.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	return nil
}

func (s *documentService) Create(ctx context.Context, req CreateDocumentRequest) (*model.Document, error) {
	ctx, span := startSpan(ctx, "Create", attribute.String("loan.id", req.LoanID))
	defer span.End()

	if err := s.validate(req); err != nil {
		return nil, fail(span, err)
	}
	doc := req.Document()
	if _, err := s.store.Insert(ctx, doc); err != nil {
		return nil, fail(span, fmt.Errorf("insert document: %w", err))
	}
	s.log.Debug("document_created",
		zap.String("document_id", doc.ID),
		zap.String("loan_id", doc.LoanID),
		zap.String("doc_type", doc.DocType),
	)
	return doc, nil
}

func (s *documentService) BulkCreate(ctx context.Context, reqs []CreateDocumentRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}
	ctx, span := startSpan(ctx, "BulkCreate", attribute.Int("documents.count", len(reqs)))
	defer span.End()

	docs := make([]model.Document, len(reqs))
	for i, req := range reqs {
		if err := s.validate(req); err != nil {
			return 0, fail(span, fmt.Errorf("document %d: %w", i, err))
		}
		docs[i] = *req.Document()
	}

	if bulk, ok := s.store.(repository.BulkInserter); ok {
		n, err := bulk.BulkInsert(ctx, docs)
		if err != nil {
			return 0, fail(span, fmt.Errorf("bulk insert: %w", err))
		}
		return n, nil
	}

	n := 0
	for i := range docs {
		if _, err := s.store.Insert(ctx, &docs[i]); err != nil {
			return n, fail(span, fmt.Errorf("insert document %d: %w", i, err))
		}
		n++
	}
	return n, nil
}

func (s *documentService) Get(ctx context.Context, id string, includeContent bool) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.store.GetByID(ctx, id, includeContent)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *documentService) ListForLoan(ctx context.Context, loanID string, includeContent bool) ([]model.Document, error) {
	if loanID == "" {
		return nil, ErrLoanIDRequired
	}
	docs, err := s.store.GetForLoan(ctx, loanID, includeContent)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

func (s *documentService) CountForLoan(ctx context.Context, loanID string) (int, error) {
	if loanID == "" {
		return 0, ErrLoanIDRequired
	}
	return s.store.CountForLoan(ctx, loanID)
}

func (s *documentService) Update(ctx context.Context, patch model.DocumentPatch) (*model.Document, error) {
	if patch.ID == "" {
		return nil, ErrIDRequired
	}
	ctx, span := startSpan(ctx, "Update", attribute.String("document.id", patch.ID))
	defer span.End()

	if err := s.validatePatch(patch); err != nil {
		return nil, fail(span, err)
	}

	applied, err := s.store.Update(ctx, patch)
	if err != nil {
		return nil, fail(span, fmt.Errorf("update document: %w", err))
	}
	if !applied {
		return nil, ErrNotFound
	}
	return s.Get(ctx, patch.ID, false)
}

// fieldCheck is one validator rule applied to a present patch field.
type fieldCheck struct {
	field string
	value any
	tag   string
}

func (s *documentService) validatePatch(p model.DocumentPatch) error {
	if p.IsEmpty() {
		return fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	var checks []fieldCheck
	if p.LoanID != nil {
		checks = append(checks, fieldCheck{"loan_id", *p.LoanID, "required,max=128"})
	}
	if p.DocType != nil {
		checks = append(checks, fieldCheck{"doc_type", *p.DocType, "required,max=128"})
	}
	if p.Filename != nil {
		checks = append(checks, fieldCheck{"filename", *p.Filename, "required,max=512"})
	}
	if p.Status != nil {
		checks = append(checks, fieldCheck{"status", string(*p.Status), "docstatus"})
	}
	if p.FileSize != nil {
		checks = append(checks, fieldCheck{"file_size", *p.FileSize, "gte=0"})
	}
	if p.Version != nil {
		checks = append(checks, fieldCheck{"version", *p.Version, "gte=0"})
	}

	for _, c := range checks {
		if err := s.validator.Var(c.value, c.tag); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrValidation, c.field, err.Error())
		}
	}
	return nil
}

func (s *documentService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	ctx, span := startSpan(ctx, "Delete", attribute.String("document.id", id))
	defer span.End()

	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return fail(span, fmt.Errorf("delete document: %w", err))
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

func (s *documentService) TransferToLoan(ctx context.Context, fromLoanID, toLoanID string) (int, error) {
	if fromLoanID == "" || toLoanID == "" {
		return 0, ErrLoanIDRequired
	}
	ctx, span := startSpan(ctx, "TransferToLoan",
		attribute.String("loan.from", fromLoanID),
		attribute.String("loan.to", toLoanID),
	)
	defer span.End()

	n, err := s.store.TransferToLoan(ctx, fromLoanID, toLoanID)
	if err != nil {
		return 0, fail(span, fmt.Errorf("transfer documents: %w", err))
	}
	span.SetAttributes(attribute.Int("documents.moved", n))
	s.log.Info("documents_transferred",
		zap.String("from_loan_id", fromLoanID),
		zap.String("to_loan_id", toLoanID),
		zap.Int("count", n),
	)
	return n, nil
}

func (s *documentService) Stats(ctx context.Context, loanID string) (model.Stats, error) {
	if loanID == "" {
		return model.Stats{}, ErrLoanIDRequired
	}
	if sp, ok := s.store.(statsProvider); ok {
		return sp.GetStats(loanID), nil
	}
	docs, err := s.store.GetForLoan(ctx, loanID, false)
	if err != nil {
		return model.Stats{}, err
	}
	return model.ComputeStats(loanID, docs), nil
}
