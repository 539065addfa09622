package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed code chunks with keyword, semantic, or hybrid retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Retrieval strategy: hybrid (fused), semantic (vectors only), or lexical (BM25 only)",
					"enum":        []string{"hybrid", "semantic", "lexical"},
					"default":     "hybrid",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"path_filter": map[string]interface{}{
					"type":        "string",
					"description": "Glob pattern restricting results by file path (e.g., 'internal/**')",
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, serve repeated queries from the response cache",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// ingestEmbeddingsTool returns the tool definition for ingest_embeddings
func ingestEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_embeddings",
		Description: "Embed chunks that have no stored vector yet and persist the results",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"max_batches": map[string]interface{}{
					"type":        "integer",
					"description": "Stop after this many batches (0 drains the whole backlog)",
					"default":     0,
					"minimum":     0,
				},
			},
		},
	}
}

// indexStatsTool returns the tool definition for index_stats
func indexStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_stats",
		Description: "Report index contents, routing state, and embedder configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
