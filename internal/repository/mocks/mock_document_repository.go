package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"loandocs/internal/model"
	"loandocs/internal/repository"
)

type MockDocumentStore struct {
	mock.Mock
}

var _ repository.DocumentStore = (*MockDocumentStore)(nil)

func (m *MockDocumentStore) Insert(ctx context.Context, doc *model.Document) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentStore) GetByID(ctx context.Context, id string, includeContent bool) (*model.Document, error) {
	args := m.Called(ctx, id, includeContent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentStore) GetForLoan(ctx context.Context, loanID string, includeContent bool) ([]model.Document, error) {
	args := m.Called(ctx, loanID, includeContent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentStore) CountForLoan(ctx context.Context, loanID string) (int, error) {
	args := m.Called(ctx, loanID)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentStore) Update(ctx context.Context, patch model.DocumentPatch) (bool, error) {
	args := m.Called(ctx, patch)
	return args.Bool(0), args.Error(1)
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDocumentStore) TransferToLoan(ctx context.Context, fromLoanID, toLoanID string) (int, error) {
	args := m.Called(ctx, fromLoanID, toLoanID)
	return args.Int(0), args.Error(1)
}

// MockBulkStore is a MockDocumentStore that also inserts in bulk.
type MockBulkStore struct {
	MockDocumentStore
}

var _ repository.BulkInserter = (*MockBulkStore)(nil)

func (m *MockBulkStore) BulkInsert(ctx context.Context, docs []model.Document) (int, error) {
	args := m.Called(ctx, docs)
	return args.Int(0), args.Error(1)
}
