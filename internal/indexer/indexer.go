package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/phuslu/log"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/pagecontext-mcp/internal/chunker"
	"github.com/dshills/pagecontext-mcp/internal/embedder"
	"github.com/dshills/pagecontext-mcp/internal/storage"
	"github.com/dshills/pagecontext-mcp/internal/vectorstore"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// DefaultLivePages is the number of ready stores kept in memory
const DefaultLivePages = 32

// Config contains configuration for the indexer
type Config struct {
	Chunking  chunker.Options
	LivePages int // Ready stores kept in memory (default: DefaultLivePages)
}

// Mode selects whether the persistent cache may satisfy a request
type Mode int

const (
	// ModeIndex reuses a compatible cached store
	ModeIndex Mode = iota
	// ModeReindex always recomputes and overwrites the cache
	ModeReindex
)

func (m Mode) String() string {
	if m == ModeReindex {
		return "reindex"
	}
	return "index"
}

// Result describes one completed index operation. Callers that joined an
// in-flight operation receive the same Store and OperationID.
type Result struct {
	Store       *vectorstore.Store
	FromCache   bool          // Loaded from the persistent cache, no embedding calls
	Persisted   bool          // Store is in the persistent cache
	CacheErr    error         // Storage failure that did not fail the operation
	Chunks      int           // Number of chunks in Store
	Duration    time.Duration // Time spent by the shared execution
	OperationID string
	Shared      bool // Result was produced for another caller too
}

// Indexer turns page text into vector stores: load from the cache when
// possible, otherwise chunk, embed, build and save.
type Indexer struct {
	chunker *chunker.Chunker
	gateway *embedder.Gateway
	cache   storage.Cache

	group singleflight.Group
	locks *keyLocks
	live  *lru.Cache[string, *vectorstore.Store]
}

// New creates a new Indexer instance
func New(gateway *embedder.Gateway, cache storage.Cache, config *Config) (*Indexer, error) {
	if config == nil {
		config = &Config{Chunking: chunker.DefaultOptions()}
	}
	if config.LivePages <= 0 {
		config.LivePages = DefaultLivePages
	}

	ch, err := chunker.New(config.Chunking)
	if err != nil {
		return nil, err
	}

	live, err := lru.New[string, *vectorstore.Store](config.LivePages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrConfiguration, err)
	}

	return &Indexer{
		chunker: ch,
		gateway: gateway,
		cache:   cache,
		locks:   newKeyLocks(),
		live:    live,
	}, nil
}

// Expect returns the embedding configuration cached stores must match
func (idx *Indexer) Expect() vectorstore.Expect {
	return vectorstore.Expect{
		Model:     idx.gateway.Model(),
		Dimension: idx.gateway.Dimension(),
	}
}

// resolveExpect is Expect with the dimension discovered from the provider
// when it declares none. A failed discovery leaves the dimension unchecked.
func (idx *Indexer) resolveExpect(ctx context.Context) vectorstore.Expect {
	expect := idx.Expect()
	if expect.Dimension > 0 {
		return expect
	}
	dim, err := idx.gateway.ResolveDimension(ctx)
	if err != nil {
		log.Warn().Err(err).Str("model", expect.Model).Msg("embedding dimension unknown, cached entries not checked")
		return expect
	}
	expect.Dimension = dim
	return expect
}

// IndexPage returns the store for pageKey, loading it from the cache when a
// compatible entry exists and computing it from rawText otherwise
func (idx *Indexer) IndexPage(ctx context.Context, pageKey, rawText string) (*Result, error) {
	return idx.run(ctx, pageKey, rawText, ModeIndex)
}

// ReindexPage recomputes the store for pageKey from rawText and overwrites
// the cached entry
func (idx *Indexer) ReindexPage(ctx context.Context, pageKey, rawText string) (*Result, error) {
	return idx.run(ctx, pageKey, rawText, ModeReindex)
}

// run executes one index operation per (mode, pageKey) at a time. The work
// is detached from ctx: a caller that gives up gets ctx.Err() while the
// computation still completes and is saved for the others.
func (idx *Indexer) run(ctx context.Context, pageKey, rawText string, mode Mode) (*Result, error) {
	if pageKey == "" {
		return nil, fmt.Errorf("%w: page key cannot be empty", types.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	ch := idx.group.DoChan(mode.String()+"|"+pageKey, func() (any, error) {
		return idx.execute(detached, pageKey, rawText, mode)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		res.Shared = r.Shared
		return &res, nil
	}
}

func (idx *Indexer) execute(ctx context.Context, pageKey, rawText string, mode Mode) (*Result, error) {
	unlock := idx.locks.Lock(pageKey)
	defer unlock()

	start := time.Now()
	res := &Result{OperationID: uuid.NewString()}

	if mode == ModeIndex {
		store, err := idx.loadLocked(ctx, pageKey)
		if err != nil {
			res.CacheErr = err
		}
		if store != nil {
			res.Store = store
			res.FromCache = true
			res.Persisted = true
			res.Chunks = store.Len()
			res.Duration = time.Since(start)
			log.Debug().Str("op", res.OperationID).Str("page_key", pageKey).Int("chunks", res.Chunks).Msg("page loaded from cache")
			return res, nil
		}
	}

	store, err := idx.build(ctx, pageKey, rawText)
	if err != nil {
		log.Warn().Err(err).Str("op", res.OperationID).Str("page_key", pageKey).Str("mode", mode.String()).Msg("indexing failed")
		return nil, err
	}
	idx.live.Add(pageKey, store)

	res.Store = store
	res.Chunks = store.Len()
	if err := vectorstore.Save(ctx, idx.cache, store, idx.gateway.Model()); err != nil {
		res.CacheErr = err
		log.Warn().Err(err).Str("op", res.OperationID).Str("page_key", pageKey).Msg("store not persisted")
	} else {
		// A failed read is superseded once the fresh store is written.
		res.Persisted = true
		res.CacheErr = nil
	}

	res.Duration = time.Since(start)
	log.Info().
		Str("op", res.OperationID).
		Str("page_key", pageKey).
		Str("mode", mode.String()).
		Int("chunks", res.Chunks).
		Bool("persisted", res.Persisted).
		Dur("duration", res.Duration).
		Msg("page indexed")

	return res, nil
}

// build chunks, embeds and assembles a new store
func (idx *Indexer) build(ctx context.Context, pageKey, rawText string) (*vectorstore.Store, error) {
	chunks := idx.chunker.Chunk(rawText)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: page %q has no text", types.ErrEmptyContent, pageKey)
	}

	vectors, err := idx.gateway.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	records := make([]vectorstore.Record, len(chunks))
	for i := range chunks {
		records[i] = vectorstore.Record{Chunk: chunks[i], Vector: vectors[i]}
	}

	return vectorstore.Build(pageKey, records)
}

// LoadPage returns the ready store for pageKey from memory or the
// persistent cache without computing anything. ok is false when neither
// holds a compatible store.
func (idx *Indexer) LoadPage(ctx context.Context, pageKey string) (*vectorstore.Store, bool, error) {
	if store, ok := idx.live.Get(pageKey); ok {
		return store, true, nil
	}

	unlock := idx.locks.Lock(pageKey)
	defer unlock()

	store, err := idx.loadLocked(ctx, pageKey)
	if err != nil {
		return nil, false, err
	}
	return store, store != nil, nil
}

// loadLocked reads pageKey from the cache. Incompatible entries are deleted
// and reported as a miss; storage failures are returned with a nil store.
func (idx *Indexer) loadLocked(ctx context.Context, pageKey string) (*vectorstore.Store, error) {
	entry, ok, err := idx.cache.Load(ctx, pageKey)
	if err != nil || !ok {
		if err != nil {
			log.Warn().Err(err).Str("page_key", pageKey).Msg("cache read failed")
		}
		return nil, err
	}

	store, err := vectorstore.Decode(entry, idx.resolveExpect(ctx))
	switch {
	case errors.Is(err, vectorstore.ErrIncompatible):
		log.Info().Err(err).Str("page_key", pageKey).Msg("discarding incompatible cache entry")
		idx.live.Remove(pageKey)
		if _, derr := idx.cache.Delete(ctx, pageKey); derr != nil {
			return nil, derr
		}
		return nil, nil
	case err != nil:
		return nil, err
	}

	idx.live.Add(pageKey, store)
	return store, nil
}

// Live returns the in-memory store for pageKey
func (idx *Indexer) Live(pageKey string) (*vectorstore.Store, bool) {
	return idx.live.Get(pageKey)
}

// LivePages returns the keys of the stores held in memory, oldest first
func (idx *Indexer) LivePages() []string {
	return idx.live.Keys()
}

// Forget drops the in-memory store for pageKey and deletes its cache entry
func (idx *Indexer) Forget(ctx context.Context, pageKey string) (bool, error) {
	unlock := idx.locks.Lock(pageKey)
	defer unlock()

	idx.live.Remove(pageKey)
	return idx.cache.Delete(ctx, pageKey)
}

// ForgetAll drops every in-memory store and clears the cache
func (idx *Indexer) ForgetAll(ctx context.Context) (int, error) {
	idx.live.Purge()
	return idx.cache.Clear(ctx)
}

// Cache returns the persistent cache the indexer writes to
func (idx *Indexer) Cache() storage.Cache {
	return idx.cache
}

// Gateway returns the embedding gateway
func (idx *Indexer) Gateway() *embedder.Gateway {
	return idx.gateway
}
