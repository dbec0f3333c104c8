package types

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Snippet is a titled piece of text in the vault
type Snippet struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Language    string    `json:"language"`
	Description string    `json:"description,omitempty"` // Optional
	Tags        string    `json:"tags,omitempty"`        // Comma separated, optional
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the fields required before a snippet can be persisted
func (s *Snippet) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return ErrEmptyTitle
	}
	if s.ID < 0 {
		return ErrInvalidSnippet
	}
	return nil
}

// EmbeddingText builds the text representation used for embeddings:
// title, optional description and content joined by spaces, truncated to
// maxChars characters. maxChars <= 0 disables truncation.
func (s *Snippet) EmbeddingText(maxChars int) string {
	var b strings.Builder
	b.Grow(len(s.Title) + len(s.Description) + len(s.Content) + 2)
	b.WriteString(s.Title)
	if s.Description != "" {
		b.WriteByte(' ')
		b.WriteString(s.Description)
	}
	b.WriteByte(' ')
	b.WriteString(s.Content)
	return TruncateChars(b.String(), maxChars)
}

// TruncateChars cuts text to at most n characters (runes) without splitting
// a multi-byte sequence. n <= 0 returns text unchanged.
func TruncateChars(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
