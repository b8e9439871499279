package embedder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// mockEmbedder returns vectors derived from the text and records calls
type mockEmbedder struct {
	mu        sync.Mutex
	calls     int
	batchLens []int
	dim       int
	failOn    string        // a batch containing this text fails
	shortOn   string        // a batch containing this text gets a short vector
	block     bool          // block until the context ends
	delay     time.Duration // sleep before answering
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	resp, err := m.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	m.mu.Lock()
	m.calls++
	m.batchLens = append(m.batchLens, len(req.Texts))
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		if m.failOn != "" && text == m.failOn {
			return nil, errors.New("upstream unavailable")
		}
		dim := m.dim
		if m.shortOn != "" && text == m.shortOn {
			dim--
		}
		vec := make([]float32, dim)
		vec[0] = float32(len(text))
		embeddings[i] = &Embedding{Vector: vec, Dimension: dim}
	}

	return &BatchEmbeddingResponse{Embeddings: embeddings, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) Dimension() int   { return 0 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func chunksOf(n int) []types.Chunk {
	chunks := make([]types.Chunk, n)
	for i := range chunks {
		text := strings.Repeat("x", i+1)
		chunks[i] = types.Chunk{SequenceIndex: i, Text: text, SourceOffsetStart: 0, SourceOffsetEnd: len(text)}
	}
	return chunks
}

func TestGatewayEmbedChunks(t *testing.T) {
	mock := &mockEmbedder{dim: 3}
	gw := NewGateway(mock, GatewayOptions{BatchSize: 50})

	vectors, err := gw.EmbedChunks(context.Background(), chunksOf(120))
	require.NoError(t, err)
	require.Len(t, vectors, 120)

	for i, v := range vectors {
		assert.Equal(t, float32(i+1), v[0], "vector %d is not aligned with its chunk", i)
	}

	assert.Equal(t, 3, mock.callCount())
	assert.ElementsMatch(t, []int{50, 50, 20}, mock.batchLens)
}

func TestGatewaySingleBatch(t *testing.T) {
	mock := &mockEmbedder{dim: 3}
	gw := NewGateway(mock, GatewayOptions{})

	_, err := gw.EmbedChunks(context.Background(), chunksOf(DefaultBatchSize))
	require.NoError(t, err)
	assert.Equal(t, 1, mock.callCount())
}

func TestGatewayEmpty(t *testing.T) {
	mock := &mockEmbedder{dim: 3}
	gw := NewGateway(mock, GatewayOptions{})

	vectors, err := gw.EmbedChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, 0, mock.callCount())
}

func TestGatewayAllOrNothing(t *testing.T) {
	tests := []struct {
		name string
		mock *mockEmbedder
	}{
		{"provider failure", &mockEmbedder{dim: 3, failOn: strings.Repeat("x", 75)}},
		{"mixed dimensions", &mockEmbedder{dim: 3, shortOn: strings.Repeat("x", 110)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewGateway(tt.mock, GatewayOptions{BatchSize: 50})

			vectors, err := gw.EmbedChunks(context.Background(), chunksOf(120))
			assert.ErrorIs(t, err, types.ErrEmbeddingProvider)
			assert.Nil(t, vectors)
		})
	}
}

func TestGatewayTimeout(t *testing.T) {
	mock := &mockEmbedder{dim: 3, block: true}
	gw := NewGateway(mock, GatewayOptions{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := gw.EmbedChunks(context.Background(), chunksOf(2))
	assert.ErrorIs(t, err, types.ErrEmbeddingProvider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGatewayKnownDimension(t *testing.T) {
	gw := NewGateway(&fixedDimEmbedder{mockEmbedder{dim: 3}}, GatewayOptions{})

	_, err := gw.EmbedChunks(context.Background(), chunksOf(2))
	assert.ErrorIs(t, err, types.ErrEmbeddingProvider)
}

// fixedDimEmbedder advertises a dimension its vectors do not have
type fixedDimEmbedder struct {
	mockEmbedder
}

func (f *fixedDimEmbedder) Dimension() int { return 8 }

func TestGatewayRateLimit(t *testing.T) {
	mock := &mockEmbedder{dim: 3}
	gw := NewGateway(mock, GatewayOptions{BatchSize: 1, RequestsPerSecond: 20})

	start := time.Now()
	_, err := gw.EmbedChunks(context.Background(), chunksOf(5))
	require.NoError(t, err)

	// burst of one, then one request every 50ms
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 5, mock.callCount())
}

func TestGatewayEmbedQuery(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(NewLocalProvider(NewCache(10)), GatewayOptions{})

	vec, err := gw.EmbedQuery(ctx, "what is the refund policy?")
	require.NoError(t, err)
	assert.Len(t, vec, LocalDimension)

	_, err = gw.EmbedQuery(ctx, "   ")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestGatewayEmbedQueryFailure(t *testing.T) {
	mock := &mockEmbedder{dim: 3, failOn: "boom"}
	gw := NewGateway(mock, GatewayOptions{})

	_, err := gw.EmbedQuery(context.Background(), "boom")
	assert.ErrorIs(t, err, types.ErrEmbeddingProvider)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestGatewayResolveDimension(t *testing.T) {
	ctx := context.Background()

	t.Run("declared dimension needs no call", func(t *testing.T) {
		fixed := &fixedDimEmbedder{mockEmbedder{dim: 8}}
		g := NewGateway(fixed, GatewayOptions{})
		dim, err := g.ResolveDimension(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, dim)
		assert.Equal(t, 0, fixed.callCount())
	})

	t.Run("undeclared dimension is discovered once", func(t *testing.T) {
		mock := &mockEmbedder{dim: 12}
		g := NewGateway(mock, GatewayOptions{})
		assert.Equal(t, 0, g.Dimension())

		dim, err := g.ResolveDimension(ctx)
		require.NoError(t, err)
		assert.Equal(t, 12, dim)
		assert.Equal(t, 12, g.Dimension())

		_, err = g.ResolveDimension(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, mock.callCount())
	})

	t.Run("observed length rejects later mismatches", func(t *testing.T) {
		mock := &mockEmbedder{dim: 12}
		g := NewGateway(mock, GatewayOptions{})
		_, err := g.EmbedTexts(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, 12, g.Dimension())

		mock.dim = 6
		_, err = g.EmbedQuery(ctx, "question")
		assert.ErrorIs(t, err, types.ErrEmbeddingProvider)
	})

	t.Run("provider failure", func(t *testing.T) {
		g := NewGateway(&mockEmbedder{dim: 4, failOn: dimensionSample}, GatewayOptions{})
		_, err := g.ResolveDimension(ctx)
		assert.ErrorIs(t, err, types.ErrEmbeddingProvider)
		assert.Equal(t, 0, g.Dimension())
	})
}
