package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/pagecontext-mcp/internal/storage"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// ErrIncompatible marks a cached entry that cannot serve the active
// embedding configuration. Callers treat it as a miss.
var ErrIncompatible = errors.New("cached entry incompatible with active embedding configuration")

// Expect describes the embedding configuration a loaded store must match.
// Zero fields are not checked.
type Expect struct {
	Model     string
	Dimension int
}

// Load reads the store for pageKey from cache. It returns (nil, false, nil)
// when nothing is cached and an error wrapping ErrIncompatible when the
// entry was written with another format, model or dimension.
func Load(ctx context.Context, cache storage.Cache, pageKey string, expect Expect) (*Store, bool, error) {
	entry, ok, err := cache.Load(ctx, pageKey)
	if err != nil || !ok {
		return nil, false, err
	}

	store, err := Decode(entry, expect)
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

// Decode checks a cached entry against expect and rebuilds its store.
// Mismatches are reported wrapping ErrIncompatible.
func Decode(entry *storage.Entry, expect Expect) (*Store, error) {
	pageKey := entry.PageKey
	if entry.FormatVersion != storage.FormatVersion {
		return nil, fmt.Errorf("%w: page %q has format version %d, want %d",
			ErrIncompatible, pageKey, entry.FormatVersion, storage.FormatVersion)
	}
	if expect.Dimension > 0 && entry.EmbeddingDimension != expect.Dimension {
		return nil, fmt.Errorf("%w: %w", ErrIncompatible,
			&types.DimensionMismatchError{PageKey: pageKey, Want: expect.Dimension, Got: entry.EmbeddingDimension})
	}
	if expect.Model != "" && entry.EmbeddingModel != expect.Model {
		return nil, fmt.Errorf("%w: page %q was embedded with %q, want %q",
			ErrIncompatible, pageKey, entry.EmbeddingModel, expect.Model)
	}

	store, err := FromEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatible, err)
	}
	return store, nil
}

// Save writes store to cache, replacing any previous entry for its page
func Save(ctx context.Context, cache storage.Cache, store *Store, model string) error {
	return cache.Save(ctx, ToEntry(store, model))
}

// ToEntry converts a store to its persisted form
func ToEntry(store *Store, model string) *storage.Entry {
	records := make([]storage.Record, len(store.records))
	for i, r := range store.records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		records[i] = storage.Record{
			Seq:         r.Chunk.SequenceIndex,
			Text:        r.Chunk.Text,
			OffsetStart: r.Chunk.SourceOffsetStart,
			OffsetEnd:   r.Chunk.SourceOffsetEnd,
			Vector:      vec,
		}
	}

	return &storage.Entry{
		PageKey:            store.pageKey,
		FormatVersion:      storage.FormatVersion,
		EmbeddingModel:     model,
		EmbeddingDimension: store.dimension,
		Records:            records,
		CreatedAt:          store.createdAt,
	}
}

// FromEntry rebuilds a store from its persisted form
func FromEntry(entry *storage.Entry) (*Store, error) {
	records := make([]Record, len(entry.Records))
	for i, r := range entry.Records {
		records[i] = Record{
			Chunk: types.Chunk{
				SequenceIndex:     r.Seq,
				Text:              r.Text,
				SourceOffsetStart: r.OffsetStart,
				SourceOffsetEnd:   r.OffsetEnd,
			},
			Vector: r.Vector,
		}
	}

	store, err := build(entry.PageKey, records, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	if store.dimension != entry.EmbeddingDimension {
		return nil, &types.DimensionMismatchError{PageKey: entry.PageKey, Want: entry.EmbeddingDimension, Got: store.dimension}
	}

	return store, nil
}
