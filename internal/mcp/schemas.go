package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func idProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
		"minimum":     1,
	}
}

// snippetProperties returns the editable snippet fields
func snippetProperties() map[string]interface{} {
	return map[string]interface{}{
		"title": map[string]interface{}{
			"type":        "string",
			"description": "Short title, required and non-blank",
		},
		"content": map[string]interface{}{
			"type":        "string",
			"description": "Snippet body",
		},
		"language": map[string]interface{}{
			"type":        "string",
			"description": "Language or format of the content (e.g. go, sql, text)",
			"default":     "text",
		},
		"description": map[string]interface{}{
			"type":        "string",
			"description": "Optional longer description, included in the embedding text",
		},
		"tags": map[string]interface{}{
			"type":        "string",
			"description": "Optional comma separated tags",
		},
	}
}

// createSnippetTool returns the tool definition for create_snippet
func createSnippetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "create_snippet",
		Description: "Store a new snippet; it is embedded right away when a model is loaded",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: snippetProperties(),
			Required:   []string{"title", "content"},
		},
	}
}

// updateSnippetTool returns the tool definition for update_snippet
func updateSnippetTool() mcp.Tool {
	props := snippetProperties()
	props["id"] = idProperty("Snippet to update")
	return mcp.Tool{
		Name:        "update_snippet",
		Description: "Change fields of an existing snippet; omitted fields keep their value",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"id"},
		},
	}
}

// deleteSnippetTool returns the tool definition for delete_snippet
func deleteSnippetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_snippet",
		Description: "Delete a snippet and its embedding",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty("Snippet to delete"),
			},
			Required: []string{"id"},
		},
	}
}

// getSnippetTool returns the tool definition for get_snippet
func getSnippetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_snippet",
		Description: "Fetch one snippet by id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": idProperty("Snippet to fetch"),
			},
			Required: []string{"id"},
		},
	}
}

// listSnippetsTool returns the tool definition for list_snippets
func listSnippetsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_snippets",
		Description: "List all snippets, most recently updated first",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// searchSnippetsTool returns the tool definition for search_snippets
func searchSnippetsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_snippets",
		Description: "Search snippets by meaning; falls back to substring matching while no model is loaded",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "auto (semantic when a model is loaded, text otherwise), semantic (fails without a model) or text",
					"enum":        []string{"auto", "semantic", "text"},
					"default":     "auto",
				},
			},
			Required: []string{"query"},
		},
	}
}

// loadModelTool returns the tool definition for load_model
func loadModelTool() mcp.Tool {
	return mcp.Tool{
		Name:        "load_model",
		Description: "Load the embedding model, downloading it first if needed",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// unloadModelTool returns the tool definition for unload_model
func unloadModelTool() mcp.Tool {
	return mcp.Tool{
		Name:        "unload_model",
		Description: "Release the embedding model; search keeps working in text mode",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// downloadModelTool returns the tool definition for download_model
func downloadModelTool() mcp.Tool {
	return mcp.Tool{
		Name:        "download_model",
		Description: "Fetch missing model files without loading them",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// modelStatusTool returns the tool definition for model_status
func modelStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "model_status",
		Description: "Report whether the model is downloaded and loaded",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// regenerateEmbeddingsTool returns the tool definition for regenerate_embeddings
func regenerateEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "regenerate_embeddings",
		Description: "Recompute every snippet embedding with the loaded model",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Snippet and embedding counts for the vault",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
