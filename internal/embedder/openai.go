package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// OpenAIProvider implements Embedder against any OpenAI-compatible
// embeddings endpoint
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
	cache     *Cache
}

// NewOpenAIProvider creates a new OpenAI embedder. An empty baseURL uses the
// public OpenAI API.
func NewOpenAIProvider(apiKey, baseURL, model string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai embedding provider requires an API key", types.ErrConfiguration)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: KnownDimension(model),
		cache:     cache,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateCached(ctx, o, o.cache, req)
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	embReq := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: req.Texts,
	}
	// A configured dimension other than the model's native one is requested
	// explicitly; text-embedding-3 models shorten their output to match.
	if o.dimension > 0 && o.dimension != KnownDimension(model) {
		embReq.Dimensions = o.dimension
	}

	resp, err := o.client.CreateEmbeddings(ctx, embReq)
	if err != nil {
		return nil, providerError(ProviderOpenAI, err)
	}

	if len(resp.Data) != len(req.Texts) {
		return nil, providerError(ProviderOpenAI,
			fmt.Errorf("expected %d embeddings, got %d", len(req.Texts), len(resp.Data)))
	}

	// Place vectors by their reported index
	embeddings := make([]*Embedding, len(req.Texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) || embeddings[data.Index] != nil {
			return nil, providerError(ProviderOpenAI, fmt.Errorf("invalid embedding index %d", data.Index))
		}
		embeddings[data.Index] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  ProviderOpenAI,
			Model:     model,
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
