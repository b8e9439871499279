package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// GeminiProvider implements Embedder using the Gemini embedding API
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
	cache     *Cache
}

// NewGeminiProvider creates a new Gemini embedder. A positive dimension
// requests that output size from the model.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL, model string, dimension int, cache *Cache) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini embedding provider requires an API key", types.ErrConfiguration)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: initialize genai client: %w", types.ErrConfiguration, err)
	}

	if dimension <= 0 {
		dimension = KnownDimension(model)
	}

	return &GeminiProvider{
		client:    client,
		model:     model,
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (g *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateCached(ctx, g, g.cache, req)
}

func (g *GeminiProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = g.model
	}

	contents := make([]*genai.Content, len(req.Texts))
	for i, text := range req.Texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var embedConfig *genai.EmbedContentConfig
	if g.dimension > 0 && g.dimension != KnownDimension(model) {
		outputDim := int32(g.dimension)
		embedConfig = &genai.EmbedContentConfig{OutputDimensionality: &outputDim}
	}

	result, err := g.client.Models.EmbedContent(ctx, model, contents, embedConfig)
	if err != nil {
		return nil, providerError(ProviderGemini, err)
	}

	if result == nil || len(result.Embeddings) != len(req.Texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, providerError(ProviderGemini,
			fmt.Errorf("expected %d embeddings, got %d", len(req.Texts), got))
	}

	embeddings := make([]*Embedding, len(result.Embeddings))
	for i, e := range result.Embeddings {
		if e == nil {
			return nil, providerError(ProviderGemini, fmt.Errorf("missing embedding at index %d", i))
		}
		embeddings[i] = &Embedding{
			Vector:    e.Values,
			Dimension: len(e.Values),
			Provider:  ProviderGemini,
			Model:     model,
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderGemini,
		Model:      model,
	}, nil
}

func (g *GeminiProvider) Dimension() int {
	return g.dimension
}

func (g *GeminiProvider) Provider() string {
	return ProviderGemini
}

func (g *GeminiProvider) Model() string {
	return g.model
}

func (g *GeminiProvider) Close() error {
	return nil
}
