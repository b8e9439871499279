package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

const (
	// DefaultConcurrency is the number of provider batches in flight
	DefaultConcurrency = 4

	// DefaultTimeout bounds a single provider call
	DefaultTimeout = 30 * time.Second
)

// GatewayOptions tunes how a Gateway talks to its provider
type GatewayOptions struct {
	BatchSize         int           // Texts per provider call, capped at MaxBatchSize
	Concurrency       int           // Provider calls in flight
	RequestsPerSecond float64       // 0 disables pacing
	Timeout           time.Duration // Per provider call
}

// dimensionSample is embedded to discover the vector length of a provider
// that does not declare one
const dimensionSample = "dimension"

// Gateway turns chunk lists into index-aligned vectors. A call either
// returns one vector per input or fails as a whole with
// types.ErrEmbeddingProvider.
type Gateway struct {
	embedder Embedder
	opts     GatewayOptions
	limiter  *rate.Limiter

	// observed is the vector length of the first successful embedding
	observed atomic.Int64
}

// NewGateway wraps an embedder, filling unset options with defaults
func NewGateway(emb Embedder, opts GatewayOptions) *Gateway {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	g := &Gateway{
		embedder: emb,
		opts:     opts,
	}
	if opts.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return g
}

// Model returns the embedding model name
func (g *Gateway) Model() string {
	return g.embedder.Model()
}

// Provider returns the provider name
func (g *Gateway) Provider() string {
	return g.embedder.Provider()
}

// Dimension returns the expected vector dimension: the provider's declared
// dimension, else the length observed on a successful call, else 0
func (g *Gateway) Dimension() int {
	if d := g.embedder.Dimension(); d > 0 {
		return d
	}
	return int(g.observed.Load())
}

// ResolveDimension returns Dimension, embedding a short sample text first
// when the provider declares none and nothing was embedded yet
func (g *Gateway) ResolveDimension(ctx context.Context) (int, error) {
	if d := g.Dimension(); d > 0 {
		return d, nil
	}
	vec, err := g.EmbedQuery(ctx, dimensionSample)
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}

// Close releases the underlying embedder
func (g *Gateway) Close() error {
	return g.embedder.Close()
}

// EmbedChunks embeds chunk texts; result[i] belongs to chunks[i]
func (g *Gateway) EmbedChunks(ctx context.Context, chunks []types.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return g.EmbedTexts(ctx, texts)
}

// EmbedTexts embeds texts in as few provider calls as the batch size
// allows; result[i] belongs to texts[i]
func (g *Gateway) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors := make([][]float32, len(texts))
	batches := 0

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Concurrency)

	for lo := 0; lo < len(texts); lo += g.opts.BatchSize {
		hi := min(lo+g.opts.BatchSize, len(texts))
		batches++

		eg.Go(func() error {
			batch, err := g.embedBatch(egCtx, texts[lo:hi])
			if err != nil {
				return err
			}
			copy(vectors[lo:hi], batch)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if err := g.checkDimensions(vectors); err != nil {
		return nil, err
	}
	g.observed.CompareAndSwap(0, int64(len(vectors[0])))

	log.Debug().
		Str("provider", g.embedder.Provider()).
		Int("texts", len(texts)).
		Int("batches", batches).
		Dur("duration", time.Since(start)).
		Msg("Embedded texts")

	return vectors, nil
}

// EmbedQuery embeds a single question. Results are served from the
// provider's embedding cache when present.
func (g *Gateway) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", types.ErrInvalidInput)
	}

	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	emb, err := g.embedder.GenerateEmbedding(callCtx, EmbeddingRequest{Text: query})
	if err != nil {
		return nil, g.wrap(err)
	}
	if emb == nil || len(emb.Vector) == 0 {
		return nil, providerError(g.embedder.Provider(), errors.New("empty query embedding"))
	}

	if err := g.checkDimensions([][]float32{emb.Vector}); err != nil {
		return nil, err
	}
	g.observed.CompareAndSwap(0, int64(len(emb.Vector)))

	return emb.Vector, nil
}

func (g *Gateway) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	resp, err := g.embedder.GenerateBatch(callCtx, BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return nil, g.wrap(err)
	}

	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, providerError(g.embedder.Provider(),
			fmt.Errorf("expected %d embeddings, got %d", len(texts), got))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Vector) == 0 {
			return nil, providerError(g.embedder.Provider(), fmt.Errorf("empty embedding at index %d", i))
		}
		out[i] = emb.Vector
	}

	return out, nil
}

// wait blocks until the rate limiter admits one request
func (g *Gateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return providerError(g.embedder.Provider(), err)
	}
	return nil
}

// checkDimensions rejects mixed vector lengths and lengths that contradict
// the provider's known or observed dimension
func (g *Gateway) checkDimensions(vectors [][]float32) error {
	want := g.Dimension()
	if want <= 0 {
		want = len(vectors[0])
	}

	for i, v := range vectors {
		if len(v) != want {
			return providerError(g.embedder.Provider(),
				fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), want))
		}
	}
	return nil
}

func (g *Gateway) wrap(err error) error {
	if errors.Is(err, types.ErrEmbeddingProvider) {
		return err
	}
	return providerError(g.embedder.Provider(), err)
}
