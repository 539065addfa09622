package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nexushq/nexus/internal/searcher"
	"github.com/nexushq/nexus/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603
	ErrorCodeEmptyQuery    = -32001
	ErrorCodeInvalidQuery  = -32002
)

func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode, err := types.ParseSearchMode(getStringDefault(args, "mode", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"allowed": []string{"lexical", "semantic", "hybrid"},
		})
	}

	req := searcher.Request{
		Query:      query,
		Mode:       mode,
		Limit:      limit,
		PathFilter: getStringDefault(args, "path_filter", ""),
		UseCache:   getBoolDefault(args, "use_cache", true),
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrEmptyQuery):
			return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
		case errors.Is(err, types.ErrInvalidQuery):
			return nil, newMCPError(ErrorCodeInvalidQuery, "query could not be parsed", map[string]interface{}{
				"error": err.Error(),
			})
		default:
			return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	results := make([]map[string]interface{}, len(resp.Hits))
	for i, h := range resp.Hits {
		results[i] = map[string]interface{}{
			"chunk_id":   h.ChunkID,
			"path":       h.Path,
			"start_line": h.StartLine,
			"end_line":   h.EndLine,
			"content":    h.Content,
			"symbol":     h.Symbol,
			"kind":       h.Kind,
			"score":      h.Score,
			"normalized": h.Normalized,
			"engine":     string(h.Engine),
		}
	}
	response := map[string]interface{}{
		"results":          results,
		"total_candidates": resp.TotalCandidates,
		"mode":             string(resp.Mode),
		"duration_ms":      resp.Duration.Milliseconds(),
		"cache_hit":        resp.CacheHit,
	}
	if resp.Decision != nil {
		response["routing"] = map[string]interface{}{
			"engine":       string(resp.Decision.Engine),
			"chunk_count":  resp.Decision.ChunkCount,
			"adapter_live": resp.Decision.AdapterLive,
			"fell_back":    resp.Decision.FellBack,
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleIngestEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	maxBatches := getIntDefault(args, "max_batches", 0)

	report, err := s.pipeline.Run(ctx, maxBatches)

	var batchErr *types.EmbeddingBatchError
	if err != nil && !errors.As(err, &batchErr) {
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if report.Embedded > 0 {
		s.searcher.InvalidateCache()
	}

	response := map[string]interface{}{
		"batches":     report.Batches,
		"embedded":    report.Embedded,
		"failed":      report.Failed,
		"mirrored":    report.Mirrored,
		"exhausted":   report.Exhausted,
		"duration_ms": report.Duration.Milliseconds(),
	}
	if batchErr != nil {
		failures := batchErr.Failed
		if len(failures) > 5 {
			failures = failures[:5]
		}
		msgs := make([]string, len(failures))
		for i, f := range failures {
			msgs[i] = f.Error()
		}
		response["errors"] = msgs
		response["error_count"] = len(batchErr.Failed)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleIndexStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.storage.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read index stats", map[string]interface{}{
			"error": err.Error(),
		})
	}
	routing, err := s.router.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read routing stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"index": map[string]interface{}{
			"files":         stats.Files,
			"chunks":        stats.Chunks,
			"embeddings":    stats.Embeddings,
			"languages":     stats.Languages,
			"index_size_mb": fmt.Sprintf("%.2f", stats.SizeMB),
		},
		"routing": map[string]interface{}{
			"engine":        string(routing.Engine),
			"threshold":     routing.Threshold,
			"chunk_count":   routing.ChunkCount,
			"adapter_state": string(routing.AdapterState),
		},
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
