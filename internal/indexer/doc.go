// Package indexer turns page text into searchable vector stores.
//
// # Basic Usage
//
//	idx, err := indexer.New(gateway, cache, &indexer.Config{
//	    Chunking: chunker.DefaultOptions(),
//	})
//
//	res, err := idx.IndexPage(ctx, "https://example.com/post", text)
//	fmt.Printf("%d chunks, from cache: %v\n", res.Chunks, res.FromCache)
//
// # Pipeline
//
// IndexPage first asks the persistent cache for a store built with the
// active embedding model and dimension. A hit costs no embedding calls. On a
// miss the page is processed in four steps:
//
//  1. Chunk: normalize the text and split it into overlapping chunks
//  2. Embed: one vector per chunk through the embedding gateway
//  3. Build: assemble an immutable vector store
//  4. Save: overwrite the cache entry for the page
//
// ReindexPage skips the cache read and always runs the pipeline.
//
// Entries written with another model, dimension or format version are
// deleted and treated as a miss.
//
// # Concurrency
//
// Concurrent IndexPage calls for one page share a single execution, as do
// concurrent ReindexPage calls. Index and reindex of the same page are
// serialised by a per-page lock, so operations on a page are totally
// ordered while different pages proceed in parallel.
//
// The shared execution is detached from the caller's context. A caller whose
// context ends returns its error immediately; the work still completes and
// is saved for the remaining callers and for later requests. Embedding calls
// stay bounded by the gateway timeout.
//
// # Storage Failures
//
// A failing cache never fails indexing. The store is still built and kept in
// memory; Result.Persisted is false and Result.CacheErr carries the
// storage error.
//
// # Live Stores
//
// The most recently built or loaded stores are kept in an LRU so that
// questions about ready pages skip the cache entirely.
package indexer
