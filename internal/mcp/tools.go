package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/snipvault/internal/indexer"
	"github.com/dshills/snipvault/internal/model"
	"github.com/dshills/snipvault/internal/searcher"
	"github.com/dshills/snipvault/internal/storage"
	"github.com/dshills/snipvault/internal/vault"
	"github.com/dshills/snipvault/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams          = -32602 // Invalid method parameters
	ErrorCodeInternalError          = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound               = -32001 // Snippet does not exist
	ErrorCodeRegenerationInProgress = -32002 // Another regeneration is already running
	ErrorCodeModelNotLoaded         = -32003 // No model loaded, or a load is in progress
	ErrorCodeEmptyQuery             = -32004 // Query parameter is empty
)

// Search modes accepted by search_snippets
const (
	searchModeAuto     = "auto"
	searchModeSemantic = "semantic"
	searchModeText     = "text"
)

// handleCreateSnippet handles the create_snippet tool invocation
func (s *Server) handleCreateSnippet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	title, ok := args["title"].(string)
	if !ok || strings.TrimSpace(title) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "title parameter is required", map[string]interface{}{
			"param":  "title",
			"reason": "missing or empty",
		})
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "content parameter is required", map[string]interface{}{
			"param":  "content",
			"reason": "missing",
		})
	}

	snippet := &types.Snippet{
		Title:       title,
		Content:     content,
		Language:    getStringDefault(args, "language", "text"),
		Description: getStringDefault(args, "description", ""),
		Tags:        getStringDefault(args, "tags", ""),
	}
	embedded, err := s.vault.CreateSnippet(ctx, snippet)
	if err != nil {
		return nil, toMCPError("failed to create snippet", err)
	}

	response := map[string]interface{}{
		"created":  true,
		"snippet":  snippet,
		"embedded": embedded,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpdateSnippet handles the update_snippet tool invocation
func (s *Server) handleUpdateSnippet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := requireID(args)
	if err != nil {
		return nil, err
	}

	snippet, err := s.vault.GetSnippet(ctx, id)
	if err != nil {
		return nil, toMCPError("failed to get snippet", err)
	}

	snippet.Title = getStringDefault(args, "title", snippet.Title)
	snippet.Content = getStringDefault(args, "content", snippet.Content)
	snippet.Language = getStringDefault(args, "language", snippet.Language)
	snippet.Description = getStringDefault(args, "description", snippet.Description)
	snippet.Tags = getStringDefault(args, "tags", snippet.Tags)

	embedded, err := s.vault.UpdateSnippet(ctx, snippet)
	if err != nil {
		return nil, toMCPError("failed to update snippet", err)
	}

	response := map[string]interface{}{
		"updated":  true,
		"snippet":  snippet,
		"embedded": embedded,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteSnippet handles the delete_snippet tool invocation
func (s *Server) handleDeleteSnippet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := requireID(args)
	if err != nil {
		return nil, err
	}

	if err := s.vault.DeleteSnippet(ctx, id); err != nil {
		return nil, toMCPError("failed to delete snippet", err)
	}

	response := map[string]interface{}{
		"deleted": true,
		"id":      id,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetSnippet handles the get_snippet tool invocation
func (s *Server) handleGetSnippet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := requireID(args)
	if err != nil {
		return nil, err
	}

	snippet, err := s.vault.GetSnippet(ctx, id)
	if err != nil {
		return nil, toMCPError("failed to get snippet", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"snippet": snippet})), nil
}

// handleListSnippets handles the list_snippets tool invocation
func (s *Server) handleListSnippets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snippets, err := s.vault.ListSnippets(ctx)
	if err != nil {
		return nil, toMCPError("failed to list snippets", err)
	}

	response := map[string]interface{}{
		"total":    len(snippets),
		"snippets": snippets,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSnippets handles the search_snippets tool invocation
func (s *Server) handleSearchSnippets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
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

	var (
		resp *searcher.SearchResponse
		err  error
	)
	switch mode := getStringDefault(args, "search_mode", searchModeAuto); mode {
	case searchModeAuto:
		resp, err = s.vault.Search(ctx, query, limit)
	case searchModeSemantic:
		resp, err = s.vault.SemanticSearch(ctx, query, limit)
	case searchModeText:
		resp, err = s.vault.TextSearch(ctx, query, limit)
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": []string{searchModeAuto, searchModeSemantic, searchModeText},
		})
	}
	if err != nil {
		return nil, toMCPError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for i, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":    i + 1,
			"score":   r.Score,
			"snippet": r.Snippet,
		})
	}

	response := map[string]interface{}{
		"search_mode":   resp.SearchMode,
		"total_results": resp.TotalResults,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleLoadModel handles the load_model tool invocation
func (s *Server) handleLoadModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	if err := s.vault.LoadModel(ctx); err != nil {
		return nil, toMCPError("failed to load model", err)
	}

	response := map[string]interface{}{
		"loaded":      true,
		"model":       s.vault.ModelStatus(),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUnloadModel handles the unload_model tool invocation
func (s *Server) handleUnloadModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.vault.UnloadModel()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"model": s.vault.ModelStatus()})), nil
}

// handleDownloadModel handles the download_model tool invocation
func (s *Server) handleDownloadModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.vault.DownloadModel(ctx)
	if err != nil {
		return nil, toMCPError("failed to download model", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"model": info})), nil
}

// handleModelStatus handles the model_status tool invocation
func (s *Server) handleModelStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"model": s.vault.ModelStatus()})), nil
}

// handleRegenerateEmbeddings handles the regenerate_embeddings tool invocation
func (s *Server) handleRegenerateEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.vault.RegenerateAll(ctx)
	if err != nil {
		return nil, toMCPError("regeneration failed", err)
	}

	response := map[string]interface{}{
		"requested":   stats.Requested,
		"regenerated": stats.Regenerated,
		"failed":      stats.Failed,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.vault.Status(ctx)
	if err != nil {
		return nil, toMCPError("failed to get status", err)
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"snippets_count":     status.SnippetsCount,
			"embeddings_count":   status.EmbeddingsCount,
			"current_embeddings": status.CurrentEmbeddings,
			"stale_embeddings":   status.StaleEmbeddings,
			"missing_embeddings": status.MissingEmbeddings,
			"database_size_mb":   fmt.Sprintf("%.2f", status.DatabaseSizeMB),
			"schema_version":     status.SchemaVersion,
		},
		"model": s.vault.ModelStatus(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// toMCPError maps domain errors onto MCP error codes
func toMCPError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, "snippet not found", data)
	case errors.Is(err, model.ErrNotLoaded), errors.Is(err, model.ErrLoading):
		return newMCPError(ErrorCodeModelNotLoaded, "model not loaded. Use load_model first.", data)
	case errors.Is(err, indexer.ErrRegenerationInProgress):
		return newMCPError(ErrorCodeRegenerationInProgress, "regeneration already in progress", data)
	case errors.Is(err, vault.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", data)
	case errors.Is(err, types.ErrEmptyTitle), errors.Is(err, types.ErrInvalidSnippet):
		return newMCPError(ErrorCodeInvalidParams, "invalid snippet", data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
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

// requireID extracts a positive snippet id
func requireID(args map[string]interface{}) (int64, error) {
	id := getIntDefault(args, "id", 0)
	if id <= 0 {
		return 0, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or not a positive integer",
		})
	}
	return int64(id), nil
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
