package types

// SearchResult represents a single search result with its similarity score
type SearchResult struct {
	Snippet   Snippet `json:"snippet"`
	Score     float64 `json:"score"`               // Cosine similarity in [-1, 1]; 1.0 for substring matches
	Highlight *string `json:"highlight,omitempty"` // Reserved for callers
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Snippet.ID == 0 {
		return ErrMissingSnippet
	}

	if sr.Score < -1 || sr.Score > 1 {
		return ErrInvalidScore
	}

	return nil
}

// ModelInfo reports the local state of the embedding model
type ModelInfo struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Path       string `json:"path,omitempty"` // Weights file, set once downloaded
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	Downloaded bool   `json:"downloaded"`
	Loaded     bool   `json:"loaded"`
	State      string `json:"state"`
}
