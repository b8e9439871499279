package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"

	"github.com/dshills/pagecontext-mcp/internal/config"
	"github.com/dshills/pagecontext-mcp/internal/logging"
	"github.com/dshills/pagecontext-mcp/internal/mcp"
	"github.com/dshills/pagecontext-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (default $PAGECONTEXT_CONFIG)")
	envFile := flag.String("env", ".env", "dotenv file with API keys")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("PageContext MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagecontext: %v\n", err)
		os.Exit(1)
	}

	// stdout is reserved for the MCP protocol
	logging.Setup(cfg.Logging)
	log.Info().
		Str("version", version).
		Str("build_mode", storage.BuildMode).
		Str("cache_backend", cfg.Cache.Backend).
		Str("cache_path", cfg.Cache.Path).
		Str("embedding_provider", cfg.Embedding.Provider).
		Msg("PageContext MCP server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := mcp.NewServerFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create MCP server")
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Msg("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received signal, shutting down")
	case err := <-errChan:
		if err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}

	log.Info().Msg("server stopped")
}
