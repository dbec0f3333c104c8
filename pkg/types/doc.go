// Package types provides shared type definitions for snipvault.
//
// These types cross package boundaries: storage persists them, the searcher
// ranks them and the MCP layer serializes them.
//
// # Core Types
//
// Snippet is the embeddable entity. Its identifier is assigned by storage and
// stays stable for the snippet's lifetime:
//
//	snippet := &types.Snippet{
//	    Title:       "Binary search",
//	    Description: "iterative version",
//	    Content:     "func search(xs []int, x int) int { ... }",
//	    Language:    "go",
//	}
//
// EmbeddingText derives the text fed to the embedding model. Title, the
// optional description and content are joined with single spaces and the
// result is truncated to a bounded number of characters:
//
//	text := snippet.EmbeddingText(2000)
//
// SearchResult pairs a snippet snapshot with a similarity score in [-1, 1].
// Plain substring matches are reported with a score of 1.0.
//
// ModelInfo describes the local embedding model: whether its artifacts are
// downloaded and whether it is currently loaded.
package types
