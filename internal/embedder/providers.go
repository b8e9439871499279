package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"

	// Default models
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultGeminiModel = "gemini-embedding-001"
	DefaultLocalModel  = "local-hash-384"

	// Dimensions
	LocalDimension = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// DefaultCacheSize is the number of embeddings kept by NewCache(0)
	DefaultCacheSize = 10000
)

// knownDimensions maps embedding models to their output dimension
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"gemini-embedding-001":   3072,
	"text-embedding-004":     768,
	DefaultLocalModel:        LocalDimension,
}

// KnownDimension returns the output dimension of a model, 0 when unknown
func KnownDimension(model string) int {
	return knownDimensions[strings.TrimPrefix(model, "models/")]
}

// LocalProvider produces deterministic feature-hashed embeddings without
// network access. Texts sharing words get similar vectors, which is enough
// for offline use and tests.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) *LocalProvider {
	return &LocalProvider{
		model: DefaultLocalModel,
		cache: cache,
	}
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateCached(ctx, l, l.cache, req)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, providerError(ProviderLocal, err)
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		vector := hashEmbedding(text, LocalDimension)
		embeddings[i] = &Embedding{
			Vector:    vector,
			Dimension: len(vector),
			Provider:  ProviderLocal,
			Model:     l.model,
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// hashEmbedding builds a unit-length bag-of-words vector. Each lowercased
// word is hashed to a bucket and a sign.
func hashEmbedding(text string, dim int) []float32 {
	vector := make([]float32, dim)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		words = []string{text}
	}

	for _, word := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum64()

		bucket := int(sum % uint64(dim))
		if sum&(1<<63) != 0 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}

	return NormalizeVector(vector)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
