package answerer

import (
	"context"
	"fmt"

	"github.com/dshills/pagecontext-mcp/internal/config"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// New creates the answerer for provider
func New(ctx context.Context, provider, apiKey, baseURL string, opts Options) (Answerer, error) {
	switch provider {
	case ProviderOpenAI, "":
		return NewOpenAIAnswerer(apiKey, baseURL, opts)
	case ProviderAnthropic:
		return NewAnthropicAnswerer(apiKey, baseURL, opts)
	case ProviderGemini:
		return NewGeminiAnswerer(ctx, apiKey, baseURL, opts)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", types.ErrConfiguration, provider)
	}
}

// NewFromConfig creates the answerer described by cfg.LLM
func NewFromConfig(ctx context.Context, cfg *config.Config) (Answerer, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	return New(ctx, cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.BaseURL, Options{
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.TimeoutDuration(),
	})
}
