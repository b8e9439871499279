// Package embedder generates vector embeddings for page chunks and questions.
//
// Providers implement the Embedder interface:
//   - openai: any OpenAI-compatible /embeddings endpoint (go-openai)
//   - gemini: the Gemini embedding API (genai)
//   - local: deterministic feature hashing, no network
//
// # Gateway
//
// Callers normally use a Gateway rather than a provider directly. The
// gateway splits a chunk list into provider batches, runs them
// concurrently, paces requests and bounds every call by a timeout:
//
//	gw := embedder.NewGateway(provider, embedder.GatewayOptions{
//	    BatchSize: 50,
//	    Timeout:   30 * time.Second,
//	})
//
//	vectors, err := gw.EmbedChunks(ctx, chunks)
//	if errors.Is(err, types.ErrEmbeddingProvider) {
//	    // nothing was embedded
//	}
//
// Results are index-aligned with the input. A failure in any batch, a
// missing or empty vector, or mixed dimensions fails the whole call; there
// are no partial results and no automatic retries.
//
// # Caching
//
// Single-text requests (questions) are cached in an LRU keyed by the
// SHA-256 of model and text:
//
//	cache := embedder.NewCache(10000)
//	provider, err := embedder.NewOpenAIProvider(apiKey, "", "", cache)
package embedder
