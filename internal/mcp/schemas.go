package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Shared property definitions
var (
	pageKeyProperty = map[string]interface{}{
		"type":        "string",
		"description": "Page identity, usually its URL. Used verbatim as the cache key",
	}
	textProperty = map[string]interface{}{
		"type":        "string",
		"description": "Visible page text. Either text or html is required",
	}
	htmlProperty = map[string]interface{}{
		"type":        "string",
		"description": "Page HTML; its visible text is extracted. Either text or html is required",
	}
)

// indexPageTool returns the tool definition for index_page
func indexPageTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_page",
		Description: "Index a web page so questions can be asked about it. Reuses cached vectors when available",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page_key": pageKeyProperty,
				"text":     textProperty,
				"html":     htmlProperty,
			},
			Required: []string{"page_key"},
		},
	}
}

// reindexPageTool returns the tool definition for reindex_page
func reindexPageTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex_page",
		Description: "Recompute a page's vectors from fresh content, replacing the cached entry",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page_key": pageKeyProperty,
				"text":     textProperty,
				"html":     htmlProperty,
			},
			Required: []string{"page_key"},
		},
	}
}

// askQuestionTool returns the tool definition for ask_question
func askQuestionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question about a page using its most relevant passages. Indexes the page first when content is supplied and nothing is cached",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page_key": pageKeyProperty,
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question about the page",
				},
				"text": textProperty,
				"html": htmlProperty,
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of passages used to ground the answer (1-100)",
					"default":     4,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"page_key", "question"},
		},
	}
}

// searchPageTool returns the tool definition for search_page
func searchPageTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_page",
		Description: "Return the passages of an indexed page most similar to a query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page_key": pageKeyProperty,
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     4,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"page_key", "query"},
		},
	}
}

// clearCacheTool returns the tool definition for clear_cache
func clearCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_cache",
		Description: "Remove every cached page",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// clearCacheEntryTool returns the tool definition for clear_cache_entry
func clearCacheEntryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_cache_entry",
		Description: "Remove one page from the cache",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page_key": pageKeyProperty,
			},
			Required: []string{"page_key"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report page states, cached entries and the active models. With page_key, report that page only",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page_key": map[string]interface{}{
					"type":        "string",
					"description": "Optional page to report on",
				},
			},
		},
	}
}
