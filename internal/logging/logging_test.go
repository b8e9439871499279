package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pagecontext-mcp/internal/config"
)

func restoreLogger(t *testing.T) {
	t.Helper()
	saved := log.DefaultLogger
	t.Cleanup(func() { log.DefaultLogger = saved })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, log.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, log.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, log.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, log.InfoLevel, ParseLevel("info"))
	assert.Equal(t, log.InfoLevel, ParseLevel("verbose"))
}

func TestSetupJSON(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer
	SetupWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("page_key", "https://example.com").Int("chunks", 3).Msg("indexed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "indexed", entry["message"])
	assert.Equal(t, "https://example.com", entry["page_key"])
	assert.EqualValues(t, 3, entry["chunks"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestSetupConsole(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer
	SetupWriter(config.LoggingConfig{Level: "debug", Format: "console"}, &buf)

	log.Debug().Str("op", "load").Msg("cache miss")

	assert.Contains(t, buf.String(), "cache miss")
	assert.Contains(t, buf.String(), "op=load")
}
