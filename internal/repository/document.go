package repository

import (
	"context"
	"errors"

	"loandocs/internal/model"
)

// ErrConstraintViolation marks a write rejected by a schema constraint. The driver
// error stays in the chain.
var ErrConstraintViolation = errors.New("constraint violation")

// DocumentStore is the persistence contract shared by the relational store and the
// offline cache. Absence is reported as a nil/false result, never as an error.
type DocumentStore interface {
	// Insert stores metadata and content as one unit and returns the document id.
	// A missing id or upload date is generated.
	Insert(ctx context.Context, doc *model.Document) (string, error)

	// GetByID returns the document, or nil when it does not exist. Content is
	// attached only when includeContent is set.
	GetByID(ctx context.Context, id string, includeContent bool) (*model.Document, error)

	// GetForLoan returns the loan's documents, newest upload first.
	GetForLoan(ctx context.Context, loanID string, includeContent bool) ([]model.Document, error)

	// CountForLoan returns len(GetForLoan(loanID)) without loading rows.
	CountForLoan(ctx context.Context, loanID string) (int, error)

	// Update applies only the fields present in the patch. It reports whether
	// anything was applied; an unknown id yields false.
	Update(ctx context.Context, patch model.DocumentPatch) (bool, error)

	// Delete removes the document and its content, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// TransferToLoan moves every document of fromLoanID to toLoanID and returns
	// how many moved.
	TransferToLoan(ctx context.Context, fromLoanID, toLoanID string) (int, error)
}

// BulkInserter is implemented by stores that can write many documents atomically.
type BulkInserter interface {
	BulkInsert(ctx context.Context, docs []model.Document) (int, error)
}
