package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pagecontext-mcp/internal/storage"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

func newCache(t *testing.T) storage.Cache {
	t.Helper()
	cache, err := storage.NewSQLiteCache(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func vectorOf(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)/float32(dim)
	}
	return v
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)

	store, err := Build("https://example.com/doc", []Record{
		record(0, vectorOf(8, 1)...),
		record(1, vectorOf(8, -1)...),
		record(2, vectorOf(8, 0.5)...),
	})
	require.NoError(t, err)
	require.NoError(t, Save(ctx, cache, store, "text-embedding-3-small"))

	loaded, ok, err := Load(ctx, cache, "https://example.com/doc", Expect{Model: "text-embedding-3-small", Dimension: 8})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, ToEntry(store, "m").Records, ToEntry(loaded, "m").Records)
	assert.True(t, store.CreatedAt().Equal(loaded.CreatedAt()))

	query := vectorOf(8, 0.25)
	want, err := store.Query(query, 3)
	require.NoError(t, err)
	got, err := loaded.Query(query, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMiss(t *testing.T) {
	store, ok, err := Load(context.Background(), newCache(t), "unknown", Expect{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, store)
}

func TestLoadDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)

	store, err := Build("page", []Record{record(0, vectorOf(768, 1)...)})
	require.NoError(t, err)
	require.NoError(t, Save(ctx, cache, store, "text-embedding-004"))

	loaded, ok, err := Load(ctx, cache, "page", Expect{Dimension: 1536})
	assert.ErrorIs(t, err, ErrIncompatible)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.False(t, ok)
	assert.Nil(t, loaded)

	var dimErr *types.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 1536, dimErr.Want)
	assert.Equal(t, 768, dimErr.Got)
}

func TestLoadModelMismatch(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)

	store, err := Build("page", []Record{record(0, 1, 2, 3)})
	require.NoError(t, err)
	require.NoError(t, Save(ctx, cache, store, "model-a"))

	_, ok, err := Load(ctx, cache, "page", Expect{Model: "model-b", Dimension: 3})
	assert.ErrorIs(t, err, ErrIncompatible)
	assert.NotErrorIs(t, err, types.ErrDimensionMismatch)
	assert.False(t, ok)

	// unknown expectations accept the entry
	_, ok, err = Load(ctx, cache, "page", Expect{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadStorageFailure(t *testing.T) {
	ctx := context.Background()
	cache, err := storage.NewSQLiteCache(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	_, _, err = Load(ctx, cache, "page", Expect{})
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.NotErrorIs(t, err, ErrIncompatible)
}

func TestToEntry(t *testing.T) {
	store, err := Build("page", []Record{record(0, 1, 0), record(1, 0, 1)})
	require.NoError(t, err)

	entry := ToEntry(store, "m")
	assert.Equal(t, "page", entry.PageKey)
	assert.Equal(t, storage.FormatVersion, entry.FormatVersion)
	assert.Equal(t, 2, entry.EmbeddingDimension)
	require.Len(t, entry.Records, 2)
	assert.Equal(t, "chunk 1", entry.Records[1].Text)
	assert.NoError(t, entry.Validate())
}
