package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/pagecontext-mcp/internal/config"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Endpoint  string // Optional: OpenAI-compatible base URL or Gemini endpoint
	Model     string
	Dimension int // Optional: overrides the known model dimension
	CacheSize int
}

// New creates an embedder with explicit configuration
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.APIKey, cfg.Endpoint, cfg.Model, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Dimension > 0 {
			p.dimension = cfg.Dimension
		}
		return p, nil
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Endpoint, cfg.Model, cfg.Dimension, cache)
	case ProviderLocal:
		return NewLocalProvider(cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", types.ErrConfiguration, cfg.Provider)
	}
}

// NewFromConfig creates the embedder described by the application config.
// The embedding API key falls back to the LLM key.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Embedder, error) {
	return New(ctx, Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.EmbeddingAPIKey(),
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
	})
}

// NewGatewayFromConfig wraps the configured embedder in a Gateway
func NewGatewayFromConfig(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	emb, err := NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewGateway(emb, GatewayOptions{
		BatchSize:         cfg.Embedding.BatchSize,
		Concurrency:       cfg.Embedding.Concurrency,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           cfg.Embedding.TimeoutDuration(),
	}), nil
}
