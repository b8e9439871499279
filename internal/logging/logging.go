// Package logging configures the process-wide phuslu logger. Output always
// goes to stderr so stdout stays free for the MCP stdio transport.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/phuslu/log"

	"github.com/dshills/pagecontext-mcp/internal/config"
)

var mu sync.Mutex

// Setup installs the global logger described by cfg, writing to stderr
func Setup(cfg config.LoggingConfig) {
	SetupWriter(cfg, os.Stderr)
}

// SetupWriter installs the global logger described by cfg, writing to w
func SetupWriter(cfg config.LoggingConfig, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	var writer log.Writer
	if cfg.Format == "json" {
		writer = &log.IOWriter{Writer: w}
	} else {
		writer = &log.ConsoleWriter{Writer: w, EndWithMessage: true}
	}

	log.DefaultLogger = log.Logger{
		Level:      ParseLevel(cfg.Level),
		TimeFormat: "15:04:05",
		Writer:     writer,
	}
}

// ParseLevel maps a config level name to a phuslu level; unknown names
// mean info
func ParseLevel(level string) log.Level {
	switch level {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
