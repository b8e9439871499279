package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/phuslu/log"

	"github.com/dshills/pagecontext-mcp/internal/embedder"
	"github.com/dshills/pagecontext-mcp/internal/indexer"
	"github.com/dshills/pagecontext-mcp/internal/vectorstore"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

const (
	// DefaultLimit is the number of chunks retrieved per question
	DefaultLimit = 4

	// MaxLimit bounds a single request
	MaxLimit = 100

	// DefaultCacheTTL is how long a response stays reusable
	DefaultCacheTTL = 5 * time.Minute

	responseCacheSize = 1000
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	PageKey  string
	Query    string
	Limit    int     // Default: DefaultLimit
	MinScore float64 // Drop results scoring below this; 0 keeps everything
	UseCache bool    // Whether to use the response cache
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	PageKey      string
	Results      []types.SearchResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher answers similarity queries against indexed pages
type Searcher struct {
	indexer *indexer.Indexer
	gateway *embedder.Gateway
	cache   *lru.Cache[[32]byte, *cacheEntry]
	ttl     time.Duration
}

// NewSearcher creates a new Searcher instance
func NewSearcher(idx *indexer.Indexer) (*Searcher, error) {
	cache, err := lru.New[[32]byte, *cacheEntry](responseCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}

	return &Searcher{
		indexer: idx,
		gateway: idx.Gateway(),
		cache:   cache,
		ttl:     DefaultCacheTTL,
	}, nil
}

// Search embeds the query and returns the closest chunks of the page. The
// page must be ready in memory or in the persistent cache, otherwise the
// error wraps types.ErrNotIndexed.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	store, ok, err := s.indexer.LoadPage(ctx, req.PageKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotIndexed, req.PageKey)
	}

	return s.SearchStore(ctx, store, req, startTime)
}

// SearchStore runs req against an already loaded store
func (s *Searcher) SearchStore(ctx context.Context, store *vectorstore.Store, req SearchRequest, startTime time.Time) (*SearchResponse, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	key := cacheKey(store, req)
	if req.UseCache {
		if cached := s.checkCache(key); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	vec, err := s.gateway.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	results, err := store.Query(vec, req.Limit)
	if err != nil {
		return nil, err
	}
	results = filterScore(results, req.MinScore)
	for i := range results {
		if err := results[i].Validate(); err != nil {
			return nil, fmt.Errorf("result %d for page %q: %w", i, req.PageKey, err)
		}
	}

	response := &SearchResponse{
		PageKey:      req.PageKey,
		Results:      results,
		TotalResults: len(results),
		Duration:     time.Since(startTime),
	}

	if req.UseCache && len(results) > 0 {
		s.storeInCache(key, response)
	}

	log.Debug().
		Str("page_key", req.PageKey).
		Int("results", len(results)).
		Dur("duration", response.Duration).
		Msg("search completed")

	return response, nil
}

// validateRequest validates and normalizes search request parameters
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if req.PageKey == "" {
		return fmt.Errorf("%w: page key cannot be empty", types.ErrInvalidInput)
	}
	if req.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrInvalidInput)
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		return fmt.Errorf("%w: limit cannot exceed %d", types.ErrInvalidInput, MaxLimit)
	}

	if req.MinScore < -1 || req.MinScore > 1 {
		return fmt.Errorf("%w: min score must be between -1 and 1", types.ErrInvalidInput)
	}

	return nil
}

// filterScore drops results below minScore. Results are sorted by score so
// the kept ones stay contiguously ranked.
func filterScore(results []types.SearchResult, minScore float64) []types.SearchResult {
	if minScore == 0 {
		return results
	}
	for i, r := range results {
		if r.Score < minScore {
			return results[:i]
		}
	}
	return results
}

// cacheKey identifies a response by store snapshot and request. A reindexed
// page has a new snapshot time and therefore new keys.
func cacheKey(store *vectorstore.Store, req SearchRequest) [32]byte {
	h := sha256.New()
	h.Write([]byte(req.PageKey))
	h.Write([]byte{0})
	h.Write([]byte(req.Query))
	h.Write([]byte{0})

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(store.CreatedAt().UnixNano()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(req.Limit))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(req.MinScore))
	h.Write(buf[:])

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// checkCache returns a copy of a live cached response
func (s *Searcher) checkCache(key [32]byte) *SearchResponse {
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil
	}

	resp := *entry.response
	resp.Results = append([]types.SearchResult(nil), entry.response.Results...)
	return &resp
}

// storeInCache stores a copy of the response
func (s *Searcher) storeInCache(key [32]byte, response *SearchResponse) {
	stored := *response
	stored.Results = append([]types.SearchResult(nil), response.Results...)
	s.cache.Add(key, &cacheEntry{
		response:  &stored,
		expiresAt: time.Now().Add(s.ttl),
	})
}

// ClearCache drops all cached responses
func (s *Searcher) ClearCache() {
	s.cache.Purge()
}
