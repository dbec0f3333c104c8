// Package mcp exposes the snippet vault as Model Context Protocol tools over
// stdio.
//
// # Tools
//
//   - create_snippet, update_snippet, delete_snippet, get_snippet, list_snippets
//   - search_snippets: semantic search, substring search while no model is loaded
//   - load_model, unload_model, download_model, model_status
//   - regenerate_embeddings: re-embed every snippet with the loaded model
//   - get_status: snippet and embedding counts
//
// # Example
//
//	Request:
//	{
//	  "name": "search_snippets",
//	  "arguments": {
//	    "query": "sorting algorithm efficiency",
//	    "limit": 5
//	  }
//	}
//
//	Response:
//	{
//	  "search_mode": "semantic",
//	  "total_results": 1,
//	  "duration_ms": 12,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.81,
//	      "snippet": {"id": 3, "title": "Binary search", ...}
//	    }
//	  ]
//	}
//
// # Errors
//
// Handlers return *MCPError values. Besides the JSON-RPC codes for invalid
// params and internal errors the server uses:
//
//	-32001  snippet not found
//	-32002  regeneration already in progress
//	-32003  model not loaded (or still loading)
//	-32004  empty query
//
// # Client configuration
//
//	{
//	  "mcpServers": {
//	    "snipvault": {
//	      "command": "snipvault",
//	      "args": ["serve"]
//	    }
//	  }
//	}
//
// Logs go to stderr; stdout carries protocol messages only.
package mcp
