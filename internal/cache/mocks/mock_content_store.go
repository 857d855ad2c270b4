package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockContentStore is a testify mock of cache.ContentStore.
type MockContentStore struct {
	mock.Mock
}

func (m *MockContentStore) Put(ctx context.Context, id, content string) error {
	args := m.Called(ctx, id, content)
	return args.Error(0)
}

func (m *MockContentStore) Get(ctx context.Context, id string) (string, bool, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockContentStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContentStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
