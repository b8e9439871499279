package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// FormatVersion is the layout version written with every entry. Entries
// with another version are not readable by this build.
const FormatVersion = 1

// Cache persists one entry per page key. Implementations must be safe for
// concurrent use; every returned error wraps types.ErrStorage.
type Cache interface {
	// Load returns the entry for pageKey; (nil, false, nil) when absent
	Load(ctx context.Context, pageKey string) (*Entry, bool, error)

	// Save atomically replaces the entry for entry.PageKey
	Save(ctx context.Context, entry *Entry) error

	// Delete removes one entry and reports whether it existed
	Delete(ctx context.Context, pageKey string) (bool, error)

	// Clear removes every entry and returns how many were removed
	Clear(ctx context.Context) (int, error)

	// List returns metadata for every entry, most recently saved first
	List(ctx context.Context) ([]EntryInfo, error)

	// Close releases the underlying database
	Close() error
}

// Record is one chunk and its embedding vector
type Record struct {
	Seq         int
	Text        string
	OffsetStart int
	OffsetEnd   int
	Vector      []float32
}

// Entry is the persisted form of a page's vector store
type Entry struct {
	PageKey            string
	FormatVersion      int
	EmbeddingModel     string
	EmbeddingDimension int
	Records            []Record
	CreatedAt          time.Time // When the vectors were computed
	SavedAt            time.Time // Set by Save
}

// EntryInfo is entry metadata without records
type EntryInfo struct {
	PageKey            string    `json:"page_key"`
	FormatVersion      int       `json:"format_version"`
	EmbeddingModel     string    `json:"embedding_model"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	RecordCount        int       `json:"record_count"`
	CreatedAt          time.Time `json:"created_at"`
	SavedAt            time.Time `json:"saved_at"`
}

// Info returns the entry's metadata
func (e *Entry) Info() EntryInfo {
	return EntryInfo{
		PageKey:            e.PageKey,
		FormatVersion:      e.FormatVersion,
		EmbeddingModel:     e.EmbeddingModel,
		EmbeddingDimension: e.EmbeddingDimension,
		RecordCount:        len(e.Records),
		CreatedAt:          e.CreatedAt,
		SavedAt:            e.SavedAt,
	}
}

// Validate checks that an entry can be saved
func (e *Entry) Validate() error {
	if e.PageKey == "" {
		return errors.New("page key cannot be empty")
	}
	if e.EmbeddingDimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", e.EmbeddingDimension)
	}
	for i, r := range e.Records {
		if len(r.Vector) != e.EmbeddingDimension {
			return fmt.Errorf("record %d has dimension %d, want %d", i, len(r.Vector), e.EmbeddingDimension)
		}
		if r.OffsetStart >= r.OffsetEnd {
			return fmt.Errorf("record %d has invalid offsets [%d, %d)", i, r.OffsetStart, r.OffsetEnd)
		}
	}
	return nil
}

// storageError wraps err as a storage failure of op
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrStorage, op, err)
}

// stamp prepares an entry for writing
func stamp(entry *Entry) {
	if entry.FormatVersion == 0 {
		entry.FormatVersion = FormatVersion
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.SavedAt = time.Now()
}
