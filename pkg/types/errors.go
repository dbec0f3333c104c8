package types

import "errors"

// Domain errors for type validation
var (
	// Snippet errors
	ErrEmptyTitle     = errors.New("snippet title cannot be empty")
	ErrInvalidSnippet = errors.New("invalid snippet ID")

	// Search result errors
	ErrInvalidScore   = errors.New("score must be between -1 and 1")
	ErrMissingSnippet = errors.New("snippet is required")
)
