// Package pageqa answers questions about web pages. It ties together
// indexing, retrieval and answer generation and tracks the lifecycle state
// of every page it has seen.
package pageqa

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/dshills/pagecontext-mcp/internal/answerer"
	"github.com/dshills/pagecontext-mcp/internal/chunker"
	"github.com/dshills/pagecontext-mcp/internal/config"
	"github.com/dshills/pagecontext-mcp/internal/embedder"
	"github.com/dshills/pagecontext-mcp/internal/indexer"
	"github.com/dshills/pagecontext-mcp/internal/searcher"
	"github.com/dshills/pagecontext-mcp/internal/storage"
	"github.com/dshills/pagecontext-mcp/internal/vectorstore"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// Options tunes retrieval for questions
type Options struct {
	TopK     int     // Passages given to the answerer (default: searcher.DefaultLimit)
	MinScore float64 // Passages scoring below this are not used
}

// AskRequest is a question about one page. RawText, when set, is indexed if
// the page is neither ready nor cached.
type AskRequest struct {
	PageKey  string
	Question string
	RawText  string
	TopK     int
}

// Answer is a generated answer with the passages it was grounded on
type Answer struct {
	Text     string
	Sources  []types.SearchResult
	Provider string
	Model    string
	Indexed  *indexer.Result // Set when the question triggered indexing
	Duration time.Duration
}

// Status summarises the service and its cache
type Status struct {
	Pages             []PageStatus        `json:"pages"`
	Cached            []storage.EntryInfo `json:"cached"`
	LivePages         []string            `json:"live_pages"`
	EmbeddingProvider string              `json:"embedding_provider"`
	EmbeddingModel    string              `json:"embedding_model"`
	Dimension         int                 `json:"embedding_dimension"`
	AnswerProvider    string              `json:"answer_provider,omitempty"`
	AnswerModel       string              `json:"answer_model,omitempty"`
}

// Service exposes the user-facing page operations
type Service struct {
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	answerer answerer.Answerer
	opts     Options
	pages    *tracker
}

// New creates a service. ans may be nil, in which case AskQuestion fails
// with types.ErrConfiguration while indexing and search keep working.
func New(idx *indexer.Indexer, s *searcher.Searcher, ans answerer.Answerer, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = searcher.DefaultLimit
	}
	return &Service{
		indexer:  idx,
		searcher: s,
		answerer: ans,
		opts:     opts,
		pages:    newTracker(),
	}
}

// NewFromConfig wires a service from configuration over cache. A missing
// LLM key only disables AskQuestion.
func NewFromConfig(ctx context.Context, cfg *config.Config, cache storage.Cache) (*Service, error) {
	gateway, err := embedder.NewGatewayFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	idx, err := indexer.New(gateway, cache, &indexer.Config{
		Chunking: chunker.Options{
			ChunkSize:    cfg.Chunking.Size,
			ChunkOverlap: cfg.Chunking.Overlap,
		},
		LivePages: cfg.Cache.LivePages,
	})
	if err != nil {
		return nil, err
	}

	s, err := searcher.NewSearcher(idx)
	if err != nil {
		return nil, err
	}

	var ans answerer.Answerer
	if cfg.ValidateLLM() == nil {
		ans, err = answerer.NewFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn().Str("provider", cfg.LLM.Provider).Msg("no LLM API key configured, questions are disabled")
	}

	return New(idx, s, ans, Options{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
	}), nil
}

// Close releases the embedding and answer providers. The cache is owned by
// the caller.
func (s *Service) Close() error {
	err := s.indexer.Gateway().Close()
	if s.answerer != nil {
		if aerr := s.answerer.Close(); err == nil {
			err = aerr
		}
	}
	return err
}

// IndexPage makes pageKey ready, reusing a compatible cached store
func (s *Service) IndexPage(ctx context.Context, pageKey, rawText string) (*indexer.Result, error) {
	return s.index(ctx, pageKey, rawText, indexer.ModeIndex)
}

// ReindexPage recomputes pageKey from rawText and overwrites the cache
func (s *Service) ReindexPage(ctx context.Context, pageKey, rawText string) (*indexer.Result, error) {
	return s.index(ctx, pageKey, rawText, indexer.ModeReindex)
}

func (s *Service) index(ctx context.Context, pageKey, rawText string, mode indexer.Mode) (*indexer.Result, error) {
	if pageKey == "" {
		return nil, fmt.Errorf("%w: page key cannot be empty", types.ErrInvalidInput)
	}

	s.pages.begin(pageKey, StateIndexing)

	var (
		res *indexer.Result
		err error
	)
	if mode == indexer.ModeReindex {
		res, err = s.indexer.ReindexPage(ctx, pageKey, rawText)
	} else {
		res, err = s.indexer.IndexPage(ctx, pageKey, rawText)
	}

	chunks := 0
	if res != nil {
		chunks = res.Chunks
	}
	s.pages.end(pageKey, err, chunks, s.isLive(pageKey))

	return res, err
}

// Search returns the passages of pageKey closest to query. A zero limit
// uses the configured top-k.
func (s *Service) Search(ctx context.Context, pageKey, query string, limit int) (*searcher.SearchResponse, error) {
	if pageKey == "" {
		return nil, fmt.Errorf("%w: page key cannot be empty", types.ErrInvalidInput)
	}
	if limit == 0 {
		limit = s.opts.TopK
	}

	s.pages.begin(pageKey, StateQuerying)
	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		PageKey:  pageKey,
		Query:    query,
		Limit:    limit,
		MinScore: s.opts.MinScore,
		UseCache: true,
	})
	s.pages.end(pageKey, err, 0, s.isLive(pageKey))

	return resp, err
}

// AskQuestion answers a question about a page. A page that is not ready is
// loaded from the cache, or indexed from req.RawText when given; otherwise
// the error wraps types.ErrNotIndexed.
func (s *Service) AskQuestion(ctx context.Context, req AskRequest) (*Answer, error) {
	start := time.Now()

	if req.PageKey == "" {
		return nil, fmt.Errorf("%w: page key cannot be empty", types.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", types.ErrInvalidInput)
	}
	if s.answerer == nil {
		return nil, fmt.Errorf("%w: no answer provider configured", types.ErrConfiguration)
	}

	store, indexed, err := s.ensureReady(ctx, req.PageKey, req.RawText)
	if err != nil {
		return nil, err
	}

	s.pages.begin(req.PageKey, StateQuerying)
	answer, err := s.answer(ctx, store, req, start)
	s.pages.end(req.PageKey, err, 0, s.isLive(req.PageKey))
	if err != nil {
		return nil, err
	}

	answer.Indexed = indexed
	return answer, nil
}

// ensureReady returns the live or cached store for pageKey, indexing
// rawText when neither exists
func (s *Service) ensureReady(ctx context.Context, pageKey, rawText string) (*vectorstore.Store, *indexer.Result, error) {
	store, ok, err := s.indexer.LoadPage(ctx, pageKey)
	if err != nil {
		log.Warn().Err(err).Str("page_key", pageKey).Msg("cache unavailable, indexing from text")
	}
	if ok {
		return store, nil, nil
	}

	if strings.TrimSpace(rawText) == "" {
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %s", types.ErrNotIndexed, pageKey)
	}

	res, err := s.IndexPage(ctx, pageKey, rawText)
	if err != nil {
		return nil, nil, err
	}
	return res.Store, res, nil
}

func (s *Service) answer(ctx context.Context, store *vectorstore.Store, req AskRequest, start time.Time) (*Answer, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}

	resp, err := s.searcher.SearchStore(ctx, store, searcher.SearchRequest{
		PageKey:  req.PageKey,
		Query:    req.Question,
		Limit:    topK,
		MinScore: s.opts.MinScore,
		UseCache: true,
	}, start)
	if err != nil {
		return nil, err
	}

	generated, err := s.answerer.Generate(ctx, req.Question, types.Texts(resp.Results))
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		Text:     generated.Text,
		Sources:  resp.Results,
		Provider: generated.Provider,
		Model:    generated.Model,
		Duration: time.Since(start),
	}

	log.Info().
		Str("page_key", req.PageKey).
		Int("sources", len(answer.Sources)).
		Str("model", answer.Model).
		Dur("duration", answer.Duration).
		Msg("question answered")

	return answer, nil
}

// ClearCache removes every cached page and all live state, returning the
// number of cache entries removed
func (s *Service) ClearCache(ctx context.Context) (int, error) {
	n, err := s.indexer.ForgetAll(ctx)
	s.searcher.ClearCache()
	s.pages.forgetAll()
	if err != nil {
		return 0, err
	}

	log.Info().Int("removed", n).Msg("cache cleared")
	return n, nil
}

// ClearCacheEntry removes pageKey from the cache and live state. It reports
// whether a cache entry existed.
func (s *Service) ClearCacheEntry(ctx context.Context, pageKey string) (bool, error) {
	if pageKey == "" {
		return false, fmt.Errorf("%w: page key cannot be empty", types.ErrInvalidInput)
	}

	removed, err := s.indexer.Forget(ctx, pageKey)
	s.pages.forget(pageKey)
	if err != nil {
		return false, err
	}
	return removed, nil
}

// State returns the lifecycle state of pageKey
func (s *Service) State(pageKey string) PageStatus {
	return s.pages.status(pageKey, s.isLive(pageKey))
}

// Status reports tracked pages, cached entries and the active models
func (s *Service) Status(ctx context.Context) (*Status, error) {
	cached, err := s.indexer.Cache().List(ctx)
	if err != nil {
		return nil, err
	}

	keys := s.pages.keys()
	sort.Strings(keys)
	pages := make([]PageStatus, len(keys))
	for i, k := range keys {
		pages[i] = s.State(k)
	}

	gw := s.indexer.Gateway()
	status := &Status{
		Pages:             pages,
		Cached:            cached,
		LivePages:         s.indexer.LivePages(),
		EmbeddingProvider: gw.Provider(),
		EmbeddingModel:    gw.Model(),
		Dimension:         gw.Dimension(),
	}
	if s.answerer != nil {
		status.AnswerProvider = s.answerer.Provider()
		status.AnswerModel = s.answerer.Model()
	}
	return status, nil
}

func (s *Service) isLive(pageKey string) bool {
	_, ok := s.indexer.Live(pageKey)
	return ok
}
