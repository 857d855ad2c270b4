package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"loandocs/internal/storage"
	storagemocks "loandocs/internal/storage/mocks"
)

func TestSQLiteContentStore(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(ctx, filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLiteContentStore(db)

	_, found, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, "d1", "<html>v1</html>"))
	require.NoError(t, s.Put(ctx, "d1", "<html>v2</html>"))
	require.NoError(t, s.Put(ctx, "d2", ""))

	got, found, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "<html>v2</html>", got)

	got, found, err = s.Get(ctx, "d2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, got)

	require.NoError(t, s.Delete(ctx, "d1"))
	require.NoError(t, s.Delete(ctx, "d1"))
	_, found, err = s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Clear(ctx))
	_, found, err = s.Get(ctx, "d2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestObjectContentStore_Put(t *testing.T) {
	ctx := context.Background()
	st := new(storagemocks.MockStorage)
	st.On("Put", mock.Anything, "document_contents_cache/d1", mock.Anything,
		mock.MatchedBy(func(o storage.PutObjectOptions) bool {
			return o.Size == 4 && o.Metadata["document-id"] == "d1"
		})).Return(storage.ObjectInfo{Key: "document_contents_cache/d1"}, nil)

	require.NoError(t, NewObjectContentStore(st).Put(ctx, "d1", "body"))
	st.AssertExpectations(t)
}

func TestObjectContentStore_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setup     func(st *storagemocks.MockStorage)
		want      string
		wantFound bool
		wantErr   bool
	}{
		{
			name: "found",
			setup: func(st *storagemocks.MockStorage) {
				st.On("Get", mock.Anything, "document_contents_cache/d1").
					Return(io.NopCloser(bytes.NewBufferString("body")), storage.ObjectInfo{}, nil)
			},
			want:      "body",
			wantFound: true,
		},
		{
			name: "not found",
			setup: func(st *storagemocks.MockStorage) {
				st.On("Get", mock.Anything, "document_contents_cache/d1").
					Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)
			},
		},
		{
			name: "storage error",
			setup: func(st *storagemocks.MockStorage) {
				st.On("Get", mock.Anything, "document_contents_cache/d1").
					Return(nil, storage.ObjectInfo{}, errors.New("timeout"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := new(storagemocks.MockStorage)
			tt.setup(st)

			got, found, err := NewObjectContentStore(st).Get(ctx, "d1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.want, got)
			st.AssertExpectations(t)
		})
	}
}

func TestObjectContentStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	st := new(storagemocks.MockStorage)
	st.On("Delete", mock.Anything, "document_contents_cache/d1").Return(nil)
	st.On("RemovePrefix", mock.Anything, "document_contents_cache/").Return(errors.New("denied"))

	s := NewObjectContentStore(st)
	require.NoError(t, s.Delete(ctx, "d1"))
	assert.Error(t, s.Clear(ctx))
	st.AssertExpectations(t)
}
