package pageqa

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pagecontext-mcp/internal/answerer"
	"github.com/dshills/pagecontext-mcp/internal/chunker"
	"github.com/dshills/pagecontext-mcp/internal/config"
	"github.com/dshills/pagecontext-mcp/internal/embedder"
	"github.com/dshills/pagecontext-mcp/internal/indexer"
	"github.com/dshills/pagecontext-mcp/internal/searcher"
	"github.com/dshills/pagecontext-mcp/internal/storage"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

const (
	pageA = "https://example.com/a"
	pageB = "https://example.com/b"
	text  = "Solar panels convert sunlight into electricity using photovoltaic cells.\n\n" +
		"Wind turbines generate power when the wind spins their blades.\n\n" +
		"Batteries store surplus energy for use at night.\n\n" +
		"Heat pumps move warmth from outside air into the house.\n\n" +
		"Smart meters report consumption to the utility every hour."
)

// fakeAnswerer records the passages it was given
type fakeAnswerer struct {
	mu       sync.Mutex
	contexts []string
	err      error
}

func (f *fakeAnswerer) Generate(_ context.Context, question string, contexts []string) (*answerer.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.contexts = contexts
	return &answerer.Answer{Text: "answer to " + question, Provider: "fake", Model: "fake-1"}, nil
}

func (f *fakeAnswerer) Provider() string { return "fake" }
func (f *fakeAnswerer) Model() string    { return "fake-1" }
func (f *fakeAnswerer) Close() error     { return nil }

func newCache(t *testing.T) storage.Cache {
	t.Helper()
	cache, err := storage.NewSQLiteCache(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func newService(t *testing.T, cache storage.Cache, ans answerer.Answerer) *Service {
	t.Helper()
	gw := embedder.NewGateway(embedder.NewLocalProvider(embedder.NewCache(100)), embedder.GatewayOptions{})
	idx, err := indexer.New(gw, cache, &indexer.Config{
		Chunking: chunker.Options{ChunkSize: 80, ChunkOverlap: 0},
	})
	require.NoError(t, err)
	s, err := searcher.NewSearcher(idx)
	require.NoError(t, err)
	return New(idx, s, ans, Options{})
}

func TestAskQuestionIndexesFromRawText(t *testing.T) {
	ans := &fakeAnswerer{}
	svc := newService(t, newCache(t), ans)

	answer, err := svc.AskQuestion(context.Background(), AskRequest{
		PageKey:  pageA,
		Question: "How do wind turbines make power?",
		RawText:  text,
	})
	require.NoError(t, err)

	assert.Equal(t, "answer to How do wind turbines make power?", answer.Text)
	assert.Equal(t, "fake-1", answer.Model)
	require.NotNil(t, answer.Indexed)
	assert.Equal(t, 5, answer.Indexed.Chunks)
	require.Len(t, answer.Sources, searcher.DefaultLimit)
	assert.Contains(t, answer.Sources[0].Chunk.Text, "Wind turbines")
	assert.Equal(t, types.Texts(answer.Sources), ans.contexts)

	assert.Equal(t, StateReady, svc.State(pageA).State)
}

func TestAskQuestionTopK(t *testing.T) {
	svc := newService(t, newCache(t), &fakeAnswerer{})
	_, err := svc.IndexPage(context.Background(), pageA, text)
	require.NoError(t, err)

	answer, err := svc.AskQuestion(context.Background(), AskRequest{PageKey: pageA, Question: "batteries", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, answer.Sources, 2)
	assert.Nil(t, answer.Indexed)
}

func TestAskQuestionLoadsFromCache(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)

	_, err := newService(t, cache, &fakeAnswerer{}).IndexPage(ctx, pageA, text)
	require.NoError(t, err)

	svc := newService(t, cache, &fakeAnswerer{})
	assert.Equal(t, StateIdle, svc.State(pageA).State)

	answer, err := svc.AskQuestion(ctx, AskRequest{PageKey: pageA, Question: "What do smart meters do?"})
	require.NoError(t, err)
	assert.Nil(t, answer.Indexed)
	assert.Contains(t, answer.Sources[0].Chunk.Text, "Smart meters")
	assert.Equal(t, StateReady, svc.State(pageA).State)
}

func TestAskQuestionErrors(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newCache(t), &fakeAnswerer{})

	_, err := svc.AskQuestion(ctx, AskRequest{PageKey: pageA, Question: "anything"})
	assert.ErrorIs(t, err, types.ErrNotIndexed)
	assert.Equal(t, StateIdle, svc.State(pageA).State)

	_, err = svc.AskQuestion(ctx, AskRequest{PageKey: pageA, Question: " "})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = svc.AskQuestion(ctx, AskRequest{Question: "anything"})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	noLLM := newService(t, newCache(t), nil)
	_, err = noLLM.AskQuestion(ctx, AskRequest{PageKey: pageA, Question: "anything", RawText: text})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestAskQuestionAnswerFailure(t *testing.T) {
	ctx := context.Background()
	ans := &fakeAnswerer{err: fmt.Errorf("%w: openai: rate limited", types.ErrAnswerProvider)}
	svc := newService(t, newCache(t), ans)

	_, err := svc.IndexPage(ctx, pageA, text)
	require.NoError(t, err)

	_, err = svc.AskQuestion(ctx, AskRequest{PageKey: pageA, Question: "solar"})
	assert.ErrorIs(t, err, types.ErrAnswerProvider)

	status := svc.State(pageA)
	assert.Equal(t, StateError, status.State)
	assert.Contains(t, status.LastError, "rate limited")

	// The next operation clears the error
	ans.mu.Lock()
	ans.err = nil
	ans.mu.Unlock()
	_, err = svc.AskQuestion(ctx, AskRequest{PageKey: pageA, Question: "solar"})
	require.NoError(t, err)
	status = svc.State(pageA)
	assert.Equal(t, StateReady, status.State)
	assert.Empty(t, status.LastError)
}

func TestIndexPageFailureState(t *testing.T) {
	svc := newService(t, newCache(t), &fakeAnswerer{})

	_, err := svc.IndexPage(context.Background(), pageA, "   ")
	assert.ErrorIs(t, err, types.ErrEmptyContent)
	assert.Equal(t, StateError, svc.State(pageA).State)

	_, err = svc.IndexPage(context.Background(), "", text)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestReindexPage(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newCache(t), &fakeAnswerer{})

	first, err := svc.IndexPage(ctx, pageA, text)
	require.NoError(t, err)
	second, err := svc.ReindexPage(ctx, pageA, "Only one short paragraph now.")
	require.NoError(t, err)

	assert.Equal(t, 5, first.Chunks)
	assert.Equal(t, 1, second.Chunks)
	assert.False(t, second.FromCache)
	assert.Equal(t, 1, svc.State(pageA).Chunks)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newCache(t), nil)

	_, err := svc.Search(ctx, pageA, "heat pumps", 2)
	assert.ErrorIs(t, err, types.ErrNotIndexed)
	assert.Equal(t, StateError, svc.State(pageA).State)

	_, err = svc.IndexPage(ctx, pageA, text)
	require.NoError(t, err)

	resp, err := svc.Search(ctx, pageA, "heat pumps warmth", 2)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Contains(t, resp.Results[0].Chunk.Text, "Heat pumps")
	assert.False(t, resp.CacheHit)
	assert.Equal(t, StateReady, svc.State(pageA).State)

	again, err := svc.Search(ctx, pageA, "heat pumps warmth", 2)
	require.NoError(t, err)
	assert.True(t, again.CacheHit)
	assert.Equal(t, resp.Results, again.Results)

	_, err = svc.ReindexPage(ctx, pageA, text)
	require.NoError(t, err)
	fresh, err := svc.Search(ctx, pageA, "heat pumps warmth", 2)
	require.NoError(t, err)
	assert.False(t, fresh.CacheHit)
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newCache(t), &fakeAnswerer{})

	for _, key := range []string{pageA, pageB} {
		_, err := svc.IndexPage(ctx, key, text)
		require.NoError(t, err)
	}

	n, err := svc.ClearCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, StateIdle, svc.State(pageA).State)
	assert.Equal(t, StateIdle, svc.State(pageB).State)

	_, err = svc.AskQuestion(ctx, AskRequest{PageKey: pageA, Question: "solar"})
	assert.ErrorIs(t, err, types.ErrNotIndexed)

	n, err = svc.ClearCache(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClearCacheEntry(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newCache(t), &fakeAnswerer{})

	for _, key := range []string{pageA, pageB} {
		_, err := svc.IndexPage(ctx, key, text)
		require.NoError(t, err)
	}

	removed, err := svc.ClearCacheEntry(ctx, pageA)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, StateIdle, svc.State(pageA).State)
	assert.Equal(t, StateReady, svc.State(pageB).State)

	removed, err = svc.ClearCacheEntry(ctx, pageA)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = svc.ClearCacheEntry(ctx, "")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newCache(t), &fakeAnswerer{})

	_, err := svc.IndexPage(ctx, pageB, text)
	require.NoError(t, err)
	_, err = svc.IndexPage(ctx, pageA, text)
	require.NoError(t, err)

	status, err := svc.Status(ctx)
	require.NoError(t, err)

	require.Len(t, status.Pages, 2)
	assert.Equal(t, pageA, status.Pages[0].PageKey)
	assert.Equal(t, StateReady, status.Pages[0].State)
	assert.Len(t, status.Cached, 2)
	assert.ElementsMatch(t, []string{pageA, pageB}, status.LivePages)
	assert.Equal(t, embedder.ProviderLocal, status.EmbeddingProvider)
	assert.Equal(t, embedder.LocalDimension, status.Dimension)
	assert.Equal(t, "fake", status.AnswerProvider)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewDefaultConfig()
	cfg.Embedding.Provider = embedder.ProviderLocal
	cfg.Chunking.Size = 80
	cfg.Chunking.Overlap = 0

	svc, err := NewFromConfig(ctx, cfg, newCache(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	res, err := svc.IndexPage(ctx, pageA, text)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Chunks)

	// Without an LLM key questions are disabled
	_, err = svc.AskQuestion(ctx, AskRequest{PageKey: pageA, Question: "solar"})
	assert.ErrorIs(t, err, types.ErrConfiguration)

	cfg.Chunking.Overlap = 80
	_, err = NewFromConfig(ctx, cfg, newCache(t))
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestTrackerConcurrentOperations(t *testing.T) {
	tr := newTracker()

	tr.begin(pageA, StateIndexing)
	tr.begin(pageA, StateQuerying)
	tr.end(pageA, nil, 3, true)
	assert.Equal(t, StateQuerying, tr.status(pageA, true).State, "another operation is still running")

	tr.end(pageA, nil, 0, true)
	status := tr.status(pageA, true)
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, 3, status.Chunks)

	tr.begin(pageA, StateQuerying)
	tr.end(pageA, errors.New("boom"), 0, true)
	assert.Equal(t, StateError, tr.status(pageA, true).State)

	tr.forget(pageA)
	assert.Equal(t, StateIdle, tr.status(pageA, false).State)
	assert.Equal(t, StateReady, tr.status(pageA, true).State)
}
