// Package types provides shared type definitions for the pagecontext server.
//
// This package defines the domain types used across the chunker, the vector
// store, the persistent cache and the orchestrator.
//
// # Chunks
//
// Chunk is a bounded segment of normalized page text, the unit of embedding
// and retrieval:
//
//	chunk := types.Chunk{
//	    SequenceIndex:     0,
//	    Text:              "Go is an open source programming language.",
//	    SourceOffsetStart: 0,
//	    SourceOffsetEnd:   42,
//	}
//
// Offsets are byte offsets into the normalized text produced by
// chunker.Normalize, so re-chunking the same page yields identical chunks.
//
// # Search Results
//
// SearchResult pairs a chunk with its cosine similarity to a query. Results
// are ranked from 1 in descending score order.
//
// # Errors
//
// Every error returned by the core wraps one category sentinel
// (ErrConfiguration, ErrEmbeddingProvider, ErrAnswerProvider, ErrStorage,
// ErrDimensionMismatch, ErrNotIndexed, ErrInvalidInput). Use errors.Is to
// test for a category, or Classify to obtain its reported name:
//
//	if errors.Is(err, types.ErrConfiguration) {
//	    // ask the user to fix the API key
//	}
package types
