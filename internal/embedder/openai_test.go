package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// newEmbeddingServer serves an OpenAI-compatible /embeddings endpoint. Each
// input text gets a vector of dim values equal to its length, or of the
// requested dimensions when the request sets them.
func newEmbeddingServer(t *testing.T, dim int, reverse bool, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return newDimensionServer(t, dim, reverse, calls, nil)
}

// newDimensionServer is newEmbeddingServer that also records the
// dimensions field of the last request in requested
func newDimensionServer(t *testing.T, dim int, reverse bool, calls, requested *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			return
		}

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if requested != nil {
			requested.Store(int32(req.Dimensions))
		}
		size := dim
		if req.Dimensions > 0 {
			size = req.Dimensions
		}

		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			vec := make([]float32, size)
			for j := range vec {
				vec[j] = float32(len(text))
			}
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		if reverse {
			for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
				data[i], data[j] = data[j], data[i]
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
}

func TestOpenAIProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("batch keeps input order", func(t *testing.T) {
		var calls atomic.Int32
		server := newEmbeddingServer(t, 4, true, &calls)
		defer server.Close()

		p, err := NewOpenAIProvider("test-key", server.URL+"/v1", "", nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultOpenAIModel, p.Model())
		assert.Equal(t, 1536, p.Dimension())

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "bb", "ccc"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
		assert.Equal(t, float32(2), resp.Embeddings[1].Vector[0])
		assert.Equal(t, float32(3), resp.Embeddings[2].Vector[0])
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("single embedding is cached", func(t *testing.T) {
		var calls atomic.Int32
		server := newEmbeddingServer(t, 4, false, &calls)
		defer server.Close()

		p, err := NewOpenAIProvider("test-key", server.URL+"/v1", "custom-model", NewCache(10))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "what is this page about?"})
			require.NoError(t, err)
			assert.Len(t, emb.Vector, 4)
			assert.Equal(t, "custom-model", emb.Model)
		}
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("dimension override is requested", func(t *testing.T) {
		var calls, requested atomic.Int32
		server := newDimensionServer(t, 1536, false, &calls, &requested)
		defer server.Close()

		emb, err := New(ctx, Config{
			Provider:  ProviderOpenAI,
			APIKey:    "test-key",
			Endpoint:  server.URL + "/v1",
			Model:     "text-embedding-3-small",
			Dimension: 512,
		})
		require.NoError(t, err)
		assert.Equal(t, 512, emb.Dimension())

		g := NewGateway(emb, GatewayOptions{})
		vectors, err := g.EmbedTexts(ctx, []string{"solar", "wind"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Len(t, vectors[0], 512)
		assert.Equal(t, int32(512), requested.Load())
	})

	t.Run("native dimension is not requested", func(t *testing.T) {
		var calls, requested atomic.Int32
		server := newDimensionServer(t, 1536, false, &calls, &requested)
		defer server.Close()

		p, err := NewOpenAIProvider("test-key", server.URL+"/v1", "text-embedding-3-small", nil)
		require.NoError(t, err)

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a"}})
		require.NoError(t, err)
		assert.Len(t, resp.Embeddings[0].Vector, 1536)
		assert.Equal(t, int32(0), requested.Load())
	})

	t.Run("api error", func(t *testing.T) {
		var calls atomic.Int32
		server := newEmbeddingServer(t, 4, false, &calls)
		defer server.Close()

		p, err := NewOpenAIProvider("wrong-key", server.URL+"/v1", "", nil)
		require.NoError(t, err)

		_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a"}})
		assert.ErrorIs(t, err, types.ErrEmbeddingProvider)
	})

	t.Run("batch too large", func(t *testing.T) {
		p, err := NewOpenAIProvider("test-key", "http://127.0.0.1:0/v1", "", nil)
		require.NoError(t, err)

		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = "x"
		}
		_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIProvider("", "", "", nil)
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})
}
