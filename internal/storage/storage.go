package storage

import (
	"context"
	"time"

	"github.com/dshills/snipvault/pkg/types"
)

// Storage defines the interface for persisting snippets and their embeddings
type Storage interface {
	// Snippet operations
	CreateSnippet(ctx context.Context, snippet *types.Snippet) error
	GetSnippet(ctx context.Context, id int64) (*types.Snippet, error)
	ListSnippets(ctx context.Context) ([]*types.Snippet, error)
	ListSnippetsWithoutEmbedding(ctx context.Context) ([]*types.Snippet, error)
	UpdateSnippet(ctx context.Context, snippet *types.Snippet) error
	DeleteSnippet(ctx context.Context, id int64) error
	SearchSnippets(ctx context.Context, query string, limit int) ([]*types.Snippet, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, snippetID int64) (*Embedding, error)
	ListEmbeddings(ctx context.Context) ([]*Embedding, error)
	DeleteEmbedding(ctx context.Context, snippetID int64) error

	// Status operations
	GetStatus(ctx context.Context, modelVersion string) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Embedding is the cached vector of one snippet. At most one exists per
// snippet; a record whose ModelVersion differs from the loaded model is stale.
type Embedding struct {
	SnippetID    int64
	Vector       []float32
	ModelVersion string
	CreatedAt    time.Time
}

// Status contains statistics about the vault database
type Status struct {
	SnippetsCount     int
	EmbeddingsCount   int
	CurrentEmbeddings int // Records tagged with the requested model version
	StaleEmbeddings   int // Records tagged with any other version
	MissingEmbeddings int // Snippets without a record
	DatabaseSizeMB    float64
	SchemaVersion     string
}
