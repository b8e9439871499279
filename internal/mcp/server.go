package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/phuslu/log"

	"github.com/dshills/pagecontext-mcp/internal/config"
	"github.com/dshills/pagecontext-mcp/internal/pageqa"
	"github.com/dshills/pagecontext-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "pagecontext-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	service *pageqa.Service
	cache   *storage.Shared
}

// NewServer creates an MCP server for an existing service
func NewServer(service *pageqa.Service) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:     mcpServer,
		service: service,
	}
	s.registerTools()

	return s
}

// NewServerFromConfig opens the shared page cache and builds the service
// described by cfg
func NewServerFromConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	cache, err := storage.Open(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		return nil, err
	}

	service, err := pageqa.NewFromConfig(ctx, cfg, cache)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to initialize service: %w", err)
	}

	s := NewServer(service)
	s.cache = cache

	log.Info().
		Str("backend", cache.Backend()).
		Str("path", cache.Path()).
		Str("embedding_model", cfg.Embedding.Model).
		Msg("page cache configured")

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// Close releases the service and the cache handle
func (s *Server) Close() error {
	err := s.service.Close()
	if s.cache != nil {
		if cerr := s.cache.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexPageTool(), s.handleIndexPage)
	s.mcp.AddTool(reindexPageTool(), s.handleReindexPage)
	s.mcp.AddTool(askQuestionTool(), s.handleAskQuestion)
	s.mcp.AddTool(searchPageTool(), s.handleSearchPage)
	s.mcp.AddTool(clearCacheTool(), s.handleClearCache)
	s.mcp.AddTool(clearCacheEntryTool(), s.handleClearCacheEntry)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
