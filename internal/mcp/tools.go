package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/pagecontext-mcp/internal/extract"
	"github.com/dshills/pagecontext-mcp/internal/indexer"
	"github.com/dshills/pagecontext-mcp/internal/pageqa"
	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeNotIndexed        = -32003 // Page not indexed and no content supplied
	ErrorCodeEmptyQuery        = -32004 // Query parameter is empty
	ErrorCodeConfiguration     = -32005 // Missing or invalid configuration
	ErrorCodeEmbeddingProvider = -32006 // Embedding provider failed or timed out
	ErrorCodeAnswerProvider    = -32007 // Answer provider failed or timed out
	ErrorCodeStorage           = -32008 // Page cache unavailable
	ErrorCodeDimensionMismatch = -32009 // Vectors of incompatible dimension
	ErrorCodeCanceled          = -32010 // Request canceled
)

var categoryCodes = map[string]int{
	types.CategoryInvalidInput:      ErrorCodeInvalidParams,
	types.CategoryNotIndexed:        ErrorCodeNotIndexed,
	types.CategoryConfiguration:     ErrorCodeConfiguration,
	types.CategoryEmbeddingProvider: ErrorCodeEmbeddingProvider,
	types.CategoryAnswerProvider:    ErrorCodeAnswerProvider,
	types.CategoryStorage:           ErrorCodeStorage,
	types.CategoryDimensionMismatch: ErrorCodeDimensionMismatch,
	types.CategoryCanceled:          ErrorCodeCanceled,
}

// handleIndexPage handles the index_page tool invocation
func (s *Server) handleIndexPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.index(ctx, request, indexer.ModeIndex)
}

// handleReindexPage handles the reindex_page tool invocation
func (s *Server) handleReindexPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.index(ctx, request, indexer.ModeReindex)
}

func (s *Server) index(ctx context.Context, request mcp.CallToolRequest, mode indexer.Mode) (*mcp.CallToolResult, error) {
	args, pageKey, err := pageArgs(request)
	if err != nil {
		return nil, err
	}

	text, err := pageContent(args, true)
	if err != nil {
		return nil, err
	}

	var res *indexer.Result
	if mode == indexer.ModeReindex {
		res, err = s.service.ReindexPage(ctx, pageKey, text)
	} else {
		res, err = s.service.IndexPage(ctx, pageKey, text)
	}
	if err != nil {
		return nil, toolError("indexing failed", err)
	}

	response := map[string]interface{}{
		"indexed":      true,
		"page_key":     pageKey,
		"chunks":       res.Chunks,
		"dimension":    res.Store.Dimension(),
		"from_cache":   res.FromCache,
		"persisted":    res.Persisted,
		"operation_id": res.OperationID,
		"duration_ms":  res.Duration.Milliseconds(),
	}
	if res.CacheErr != nil {
		response["cache_error"] = res.CacheErr.Error()
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAskQuestion handles the ask_question tool invocation
func (s *Server) handleAskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, pageKey, err := pageArgs(request)
	if err != nil {
		return nil, err
	}

	question := getStringDefault(args, "question", "")
	if question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	topK := getIntDefault(args, "top_k", 0)
	if topK < 0 || topK > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 100", map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	text, err := pageContent(args, false)
	if err != nil {
		return nil, err
	}

	answer, err := s.service.AskQuestion(ctx, pageqa.AskRequest{
		PageKey:  pageKey,
		Question: question,
		RawText:  text,
		TopK:     topK,
	})
	if err != nil {
		return nil, toolError("question failed", err)
	}

	response := map[string]interface{}{
		"answer":      answer.Text,
		"model":       answer.Model,
		"provider":    answer.Provider,
		"sources":     formatResults(answer.Sources),
		"indexed_now": answer.Indexed != nil,
		"duration_ms": answer.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchPage handles the search_page tool invocation
func (s *Server) handleSearchPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, pageKey, err := pageArgs(request)
	if err != nil {
		return nil, err
	}

	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 4)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp, err := s.service.Search(ctx, pageKey, query, limit)
	if err != nil {
		return nil, toolError("search failed", err)
	}

	response := map[string]interface{}{
		"page_key":      pageKey,
		"results":       formatResults(resp.Results),
		"total_results": resp.TotalResults,
		"duration_ms":   resp.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearCache handles the clear_cache tool invocation
func (s *Server) handleClearCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.service.ClearCache(ctx)
	if err != nil {
		return nil, toolError("failed to clear cache", err)
	}

	response := map[string]interface{}{
		"success": true,
		"removed": n,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearCacheEntry handles the clear_cache_entry tool invocation
func (s *Server) handleClearCacheEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, pageKey, err := pageArgs(request)
	if err != nil {
		return nil, err
	}

	removed, err := s.service.ClearCacheEntry(ctx, pageKey)
	if err != nil {
		return nil, toolError("failed to clear cache entry", err)
	}

	response := map[string]interface{}{
		"success":  true,
		"page_key": pageKey,
		"removed":  removed,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	if pageKey := getStringDefault(args, "page_key", ""); pageKey != "" {
		state := s.service.State(pageKey)
		response := map[string]interface{}{
			"page_key": pageKey,
			"state":    state.State,
			"chunks":   state.Chunks,
		}
		if state.LastError != "" {
			response["last_error"] = state.LastError
		}
		if !state.UpdatedAt.IsZero() {
			response["updated_at"] = state.UpdatedAt.Format(time.RFC3339)
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	status, err := s.service.Status(ctx)
	if err != nil {
		return nil, toolError("failed to get status", err)
	}

	cached := make([]map[string]interface{}, len(status.Cached))
	for i, e := range status.Cached {
		cached[i] = map[string]interface{}{
			"page_key":        e.PageKey,
			"embedding_model": e.EmbeddingModel,
			"dimension":       e.EmbeddingDimension,
			"chunks":          e.RecordCount,
			"saved_at":        e.SavedAt.Format(time.RFC3339),
		}
	}

	response := map[string]interface{}{
		"pages":      status.Pages,
		"cached":     cached,
		"live_pages": status.LivePages,
		"embedding": map[string]interface{}{
			"provider":  status.EmbeddingProvider,
			"model":     status.EmbeddingModel,
			"dimension": status.Dimension,
		},
	}
	if status.AnswerProvider != "" {
		response["llm"] = map[string]interface{}{
			"provider": status.AnswerProvider,
			"model":    status.AnswerModel,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// pageArgs extracts the arguments and the required page_key
func pageArgs(request mcp.CallToolRequest) (map[string]interface{}, string, error) {
	args := request.GetArguments()
	if args == nil {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	pageKey, ok := args["page_key"].(string)
	if !ok || pageKey == "" {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "page_key parameter is required", map[string]interface{}{
			"param":  "page_key",
			"reason": "missing or empty",
		})
	}

	return args, pageKey, nil
}

// pageContent returns the page text from the text or html argument
func pageContent(args map[string]interface{}, required bool) (string, error) {
	text := getStringDefault(args, "text", "")
	html := getStringDefault(args, "html", "")

	switch {
	case text != "" && html != "":
		return "", newMCPError(ErrorCodeInvalidParams, "provide either text or html, not both", map[string]interface{}{
			"param": "text",
		})
	case html != "":
		extracted, err := extract.Text(html)
		if err != nil {
			return "", newMCPError(ErrorCodeInvalidParams, "invalid html", map[string]interface{}{
				"param":  "html",
				"reason": err.Error(),
			})
		}
		return extracted, nil
	case text == "" && required:
		return "", newMCPError(ErrorCodeInvalidParams, "text or html parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	return text, nil
}

// formatResults converts search results for output
func formatResults(results []types.SearchResult) []map[string]interface{} {
	out := make([]map[string]interface{}, len(results))
	for i, r := range results {
		out[i] = map[string]interface{}{
			"rank":         r.Rank,
			"score":        r.Score,
			"sequence":     r.Chunk.SequenceIndex,
			"text":         r.Chunk.Text,
			"offset_start": r.Chunk.SourceOffsetStart,
			"offset_end":   r.Chunk.SourceOffsetEnd,
		}
	}
	return out
}

// toolError converts a service error into an MCP error carrying its
// category
func toolError(message string, err error) error {
	category := types.Classify(err)
	code, ok := categoryCodes[category]
	if !ok {
		code = ErrorCodeInternalError
	}

	data := map[string]interface{}{
		"category": category,
		"error":    err.Error(),
	}
	var dim *types.DimensionMismatchError
	if errors.As(err, &dim) {
		data["want"] = dim.Want
		data["got"] = dim.Got
	}

	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
		Err:     err,
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
	Err     error
}

func (e *MCPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("MCP error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func (e *MCPError) Unwrap() error {
	return e.Err
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
