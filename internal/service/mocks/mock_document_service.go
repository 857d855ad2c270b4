package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"loandocs/internal/model"
	"loandocs/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

var _ service.DocumentService = (*MockDocumentService)(nil)

func (m *MockDocumentService) Create(ctx context.Context, req service.CreateDocumentRequest) (*model.Document, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) BulkCreate(ctx context.Context, reqs []service.CreateDocumentRequest) (int, error) {
	args := m.Called(ctx, reqs)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id string, includeContent bool) (*model.Document, error) {
	args := m.Called(ctx, id, includeContent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) ListForLoan(ctx context.Context, loanID string, includeContent bool) ([]model.Document, error) {
	args := m.Called(ctx, loanID, includeContent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentService) CountForLoan(ctx context.Context, loanID string) (int, error) {
	args := m.Called(ctx, loanID)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentService) Update(ctx context.Context, patch model.DocumentPatch) (*model.Document, error) {
	args := m.Called(ctx, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentService) TransferToLoan(ctx context.Context, fromLoanID, toLoanID string) (int, error) {
	args := m.Called(ctx, fromLoanID, toLoanID)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentService) Stats(ctx context.Context, loanID string) (model.Stats, error) {
	args := m.Called(ctx, loanID)
	return args.Get(0).(model.Stats), args.Error(1)
}
