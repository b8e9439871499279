package types

import (
	"context"
	"errors"
	"fmt"
)

// Error categories reported at the orchestrator boundary. Every failure the
// core returns wraps exactly one of these.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrEmbeddingProvider = errors.New("embedding provider error")
	ErrAnswerProvider    = errors.New("answer provider error")
	ErrStorage           = errors.New("storage error")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNotIndexed        = errors.New("page not indexed")
	ErrInvalidInput      = errors.New("invalid input")
)

// Domain errors for type validation
var (
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between -1 and 1")
	ErrEmptyContent          = errors.New("content cannot be empty")
)

// DimensionMismatchError reports vectors of incompatible length
type DimensionMismatchError struct {
	PageKey string
	Want    int
	Got     int
	Query   bool // Got is the length of a query vector, Want the page's dimension
}

func (e *DimensionMismatchError) Error() string {
	if e.Query {
		return fmt.Sprintf("%s: query vector has dimension %d, page %q has dimension %d",
			ErrDimensionMismatch, e.Got, e.PageKey, e.Want)
	}
	if e.PageKey != "" {
		return fmt.Sprintf("%s: page %q has dimension %d, want %d", ErrDimensionMismatch, e.PageKey, e.Got, e.Want)
	}
	return fmt.Sprintf("%s: got %d, want %d", ErrDimensionMismatch, e.Got, e.Want)
}

// Is reports whether target is ErrDimensionMismatch
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Error category names as reported to callers
const (
	CategoryConfiguration     = "configuration"
	CategoryEmbeddingProvider = "embedding_provider"
	CategoryAnswerProvider    = "answer_provider"
	CategoryStorage           = "storage"
	CategoryDimensionMismatch = "dimension_mismatch"
	CategoryNotIndexed        = "not_indexed"
	CategoryInvalidInput      = "invalid_input"
	CategoryCanceled          = "canceled"
	CategoryInternal          = "internal"
)

// Classify maps an error to its category name
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return CategoryConfiguration
	case errors.Is(err, ErrEmbeddingProvider):
		return CategoryEmbeddingProvider
	case errors.Is(err, ErrAnswerProvider):
		return CategoryAnswerProvider
	case errors.Is(err, ErrStorage):
		return CategoryStorage
	case errors.Is(err, ErrDimensionMismatch):
		return CategoryDimensionMismatch
	case errors.Is(err, ErrNotIndexed):
		return CategoryNotIndexed
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyContent):
		return CategoryInvalidInput
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	default:
		return CategoryInternal
	}
}
