package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

var allEnv = []string{
	EnvConfig, EnvAPIKey, EnvOpenAIAPIKey, EnvBaseURL, EnvModel, EnvLLMProvider,
	EnvEmbeddingProvider, EnvEmbeddingAPIKey, EnvEmbeddingEndpoint, EnvEmbeddingModel,
	EnvDBPath, EnvCacheBackend, EnvLogLevel, EnvTopK,
}

// clearEnv unsets every variable Load reads for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnv {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, DefaultMaxTokens, cfg.LLM.MaxTokens)
	assert.Equal(t, 60*time.Second, cfg.LLM.TimeoutDuration())
	assert.Equal(t, DefaultEmbeddingModel, cfg.Embedding.Model)
	assert.Equal(t, 30*time.Second, cfg.Embedding.TimeoutDuration())
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, "cache.db", filepath.Base(cfg.Cache.Path))
}

func TestLoadRequiresAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load("", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestLoadLocalProviderNeedsNoKey(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEmbeddingProvider, "LOCAL")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.ErrorIs(t, cfg.ValidateLLM(), types.ErrConfiguration)
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[llm]
provider = "anthropic"
api_key = "llm-key"
model = "claude-test"
max_tokens = 256

[embedding]
provider = "openai"
endpoint = "http://localhost:8080/v1"
model = "text-embedding-3-large"
batch_size = 20

[chunking]
size = 500
overlap = 50

[cache]
backend = "badger"
path = "/tmp/pages"
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 256, cfg.LLM.MaxTokens)
	assert.Equal(t, "http://localhost:8080/v1", cfg.Embedding.Endpoint)
	assert.Equal(t, 20, cfg.Embedding.BatchSize)
	assert.Equal(t, 4, cfg.Embedding.Concurrency, "unset keys keep defaults")
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, "llm-key", cfg.EmbeddingAPIKey())
	assert.NoError(t, cfg.ValidateLLM())
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "[retrieval]\ntop_k = 7\n")
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvAPIKey, "k")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), "")
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestLoadInvalidTOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "bad.toml", "[llm\nprovider=")

	_, err := Load(path, "")
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[llm]
api_key = "file-key"
model = "file-model"
`)
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvModel, "env-model")
	t.Setenv(EnvEmbeddingAPIKey, "embed-key")
	t.Setenv(EnvDBPath, "/tmp/other.db")
	t.Setenv(EnvTopK, "9")
	t.Setenv(EnvLogLevel, "DEBUG")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "embed-key", cfg.EmbeddingAPIKey())
	assert.Equal(t, "/tmp/other.db", cfg.Cache.Path)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestOpenAIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIAPIKey, "sk-fallback")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", cfg.LLM.APIKey)

	t.Setenv(EnvAPIKey, "preferred")
	cfg, err = Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "preferred", cfg.LLM.APIKey)
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", EnvAPIKey+"=from-dotenv\n"+EnvModel+"=dotenv-model\n")
	t.Setenv(EnvModel, "process-model")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
	assert.Equal(t, "process-model", cfg.LLM.Model)
}

func TestMissingDotEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "k")

	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "cohere" }},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "bert" }},
		{"overlap not below size", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }},
		{"zero chunk size", func(c *Config) { c.Chunking.Size = 0 }},
		{"bad base url", func(c *Config) { c.LLM.BaseURL = "not a url" }},
		{"bad timeout", func(c *Config) { c.Embedding.Timeout = "soon" }},
		{"negative timeout", func(c *Config) { c.LLM.Timeout = "-1s" }},
		{"batch too large", func(c *Config) { c.Embedding.BatchSize = 500 }},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "redis" }},
		{"empty cache path", func(c *Config) { c.Cache.Path = "" }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"min score out of range", func(c *Config) { c.Retrieval.MinScore = 2 }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.LLM.APIKey = "k"
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrConfiguration)
		})
	}

	cfg := NewDefaultConfig()
	cfg.LLM.APIKey = "k"
	assert.NoError(t, cfg.Validate())
}

func TestTimeoutDurationInvalid(t *testing.T) {
	assert.Zero(t, LLMConfig{Timeout: ""}.TimeoutDuration())
	assert.Zero(t, EmbeddingConfig{Timeout: "x"}.TimeoutDuration())
	assert.Equal(t, 5*time.Second, EmbeddingConfig{Timeout: "5s"}.TimeoutDuration())
}
