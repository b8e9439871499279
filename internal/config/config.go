// Package config loads application settings from defaults, a TOML file, a
// .env file and the environment, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// Config represents the application configuration
type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Cache     CacheConfig     `toml:"cache"`
	Logging   LoggingConfig   `toml:"logging"`
}

// LLMConfig selects the answer-generating model
type LLMConfig struct {
	Provider  string `toml:"provider" validate:"oneof=openai anthropic gemini"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url" validate:"omitempty,url"` // OpenAI-compatible endpoint
	Model     string `toml:"model" validate:"required"`
	MaxTokens int    `toml:"max_tokens" validate:"gt=0"`
	Timeout   string `toml:"timeout" validate:"duration"` // e.g. "60s"
}

// EmbeddingConfig selects the embedding model and how it is called
type EmbeddingConfig struct {
	Provider          string  `toml:"provider" validate:"oneof=openai gemini local"`
	APIKey            string  `toml:"api_key"`                             // Falls back to llm.api_key
	Endpoint          string  `toml:"endpoint" validate:"omitempty,url"`   // OpenAI-compatible base URL
	Model             string  `toml:"model" validate:"required"`           // e.g. "text-embedding-3-small"
	Dimension         int     `toml:"dimension" validate:"gte=0"`          // 0 = known model dimension
	BatchSize         int     `toml:"batch_size" validate:"gt=0,lte=100"`  // Texts per provider call
	Concurrency       int     `toml:"concurrency" validate:"gt=0,lte=32"`  // Provider calls in flight
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gte=0"` // 0 = unlimited
	Timeout           string  `toml:"timeout" validate:"duration"`
	CacheSize         int     `toml:"cache_size" validate:"gte=0"` // Query embeddings kept in memory
}

// ChunkingConfig controls how page text is split
type ChunkingConfig struct {
	Size    int `toml:"size" validate:"gt=0"`
	Overlap int `toml:"overlap" validate:"gte=0,ltfield=Size"`
}

// RetrievalConfig controls question-time search
type RetrievalConfig struct {
	TopK     int     `toml:"top_k" validate:"gt=0,lte=100"`
	MinScore float64 `toml:"min_score" validate:"gte=-1,lte=1"`
}

// CacheConfig selects where page vectors are persisted
type CacheConfig struct {
	Backend   string `toml:"backend" validate:"oneof=sqlite badger"`
	Path      string `toml:"path" validate:"required"`
	LivePages int    `toml:"live_pages" validate:"gt=0"` // Pages kept ready in memory
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
}

// Default values
const (
	DefaultLLMProvider       = "openai"
	DefaultModel             = "gpt-4o-mini"
	DefaultMaxTokens         = 100
	DefaultEmbeddingProvider = "openai"
	DefaultEmbeddingModel    = "text-embedding-3-small"
	DefaultChunkSize         = 1000
	DefaultChunkOverlap      = 200
	DefaultTopK              = 4
)

// Environment variables
const (
	EnvConfig            = "PAGECONTEXT_CONFIG"
	EnvAPIKey            = "PAGECONTEXT_API_KEY"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvBaseURL           = "PAGECONTEXT_BASE_URL"
	EnvModel             = "PAGECONTEXT_MODEL"
	EnvLLMProvider       = "PAGECONTEXT_LLM_PROVIDER"
	EnvEmbeddingProvider = "PAGECONTEXT_EMBEDDING_PROVIDER"
	EnvEmbeddingAPIKey   = "PAGECONTEXT_EMBEDDING_API_KEY"
	EnvEmbeddingEndpoint = "PAGECONTEXT_EMBEDDING_ENDPOINT"
	EnvEmbeddingModel    = "PAGECONTEXT_EMBEDDING_MODEL"
	EnvDBPath            = "PAGECONTEXT_DB_PATH"
	EnvCacheBackend      = "PAGECONTEXT_CACHE_BACKEND"
	EnvLogLevel          = "PAGECONTEXT_LOG_LEVEL"
	EnvTopK              = "PAGECONTEXT_TOP_K"
)

// NewDefaultConfig returns the built-in configuration
func NewDefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  DefaultLLMProvider,
			Model:     DefaultModel,
			MaxTokens: DefaultMaxTokens,
			Timeout:   "60s",
		},
		Embedding: EmbeddingConfig{
			Provider:    DefaultEmbeddingProvider,
			Model:       DefaultEmbeddingModel,
			BatchSize:   50,
			Concurrency: 4,
			Timeout:     "30s",
			CacheSize:   1000,
		},
		Chunking: ChunkingConfig{
			Size:    DefaultChunkSize,
			Overlap: DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK: DefaultTopK,
		},
		Cache: CacheConfig{
			Backend:   "sqlite",
			Path:      DefaultCachePath(),
			LivePages: 32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultCachePath returns ~/.pagecontext/cache.db, or a relative path when
// the home directory is unknown
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".pagecontext", "cache.db")
	}
	return filepath.Join(home, ".pagecontext", "cache.db")
}

// Load builds the configuration: defaults, then the TOML file at path (or
// $PAGECONTEXT_CONFIG when path is empty), then variables from envFile
// that are not already set, then the environment. The result is validated.
func Load(path, envFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %w", types.ErrConfiguration, path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s: %w", types.ErrConfiguration, path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to load %s: %w", types.ErrConfiguration, envFile, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.LLM.APIKey = key
	} else if key := os.Getenv(EnvOpenAIAPIKey); key != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = key
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv(EnvLLMProvider); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}

	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvEmbeddingAPIKey); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvEmbeddingEndpoint); v != "" {
		cfg.Embedding.Endpoint = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv(EnvCacheBackend); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvTopK); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = k
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// EmbeddingAPIKey returns the key for the embedding provider, falling back
// to the LLM key
func (c *Config) EmbeddingAPIKey() string {
	if c.Embedding.APIKey != "" {
		return c.Embedding.APIKey
	}
	return c.LLM.APIKey
}

// TimeoutDuration returns the per-call LLM timeout
func (c LLMConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// TimeoutDuration returns the per-call embedding timeout
func (c EmbeddingConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// parseDuration returns 0 for empty or invalid values
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		d, err := time.ParseDuration(s)
		return err == nil && d > 0
	})
	return v
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", types.ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", types.ErrConfiguration, err)
	}

	if c.Embedding.Provider != "local" && c.EmbeddingAPIKey() == "" {
		return fmt.Errorf("%w: embedding provider %s requires an API key (%s or %s)",
			types.ErrConfiguration, c.Embedding.Provider, EnvEmbeddingAPIKey, EnvAPIKey)
	}

	return nil
}

// ValidateLLM checks that answer generation is usable. Indexing and search
// work without it.
func (c *Config) ValidateLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: llm provider %s requires an API key (%s)",
			types.ErrConfiguration, c.LLM.Provider, EnvAPIKey)
	}
	return nil
}
