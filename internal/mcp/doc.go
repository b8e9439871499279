// Package mcp implements the Model Context Protocol (MCP) server for PageContext.
//
// The server exposes page question answering to MCP clients over stdio:
//   - index_page: Chunk and embed a page, reusing the persistent cache
//   - reindex_page: Rebuild a page's index, ignoring the cache
//   - ask_question: Answer a question from the most relevant chunks of a page
//   - search_page: Return the most relevant chunks of a page for a query
//   - clear_cache: Remove every cached page
//   - clear_cache_entry: Remove one cached page
//   - get_status: Report page state or overall configuration
//
// Page content is passed either as plain text or as HTML. HTML is reduced to
// readable text before chunking.
//
// # Tool: ask_question
//
//	Request:
//	{
//	  "name": "ask_question",
//	  "arguments": {
//	    "page_key": "https://example.com/article",
//	    "question": "Who wrote the article?",
//	    "html": "<html>...</html>",
//	    "top_k": 4
//	  }
//	}
//
//	Response:
//	{
//	  "answer": "The article was written by ...",
//	  "provider": "openai",
//	  "model": "gpt-4o-mini",
//	  "indexed_now": true,
//	  "sources": [{"rank": 1, "score": 0.83, "sequence": 2, "text": "..."}]
//	}
//
// When the page has no index and no content is supplied the tool fails with
// code -32003.
//
// # Error Handling
//
// Handlers return *MCPError. Service errors are classified and mapped to a
// code, with the category in the error data:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32003: Page not indexed
//   - -32004: Empty query or question
//   - -32005: Configuration
//   - -32006: Embedding provider
//   - -32007: Answer provider
//   - -32008: Page cache unavailable
//   - -32009: Dimension mismatch (data carries want and got)
//   - -32010: Canceled
//
// # Logging
//
// stdout is reserved for the protocol. Logs go to stderr through the
// global phuslu/log logger configured by the logging package.
package mcp
