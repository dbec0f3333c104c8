package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/snipvault/internal/embedder"
	"github.com/dshills/snipvault/internal/metrics"
	"github.com/dshills/snipvault/internal/model"
	"github.com/dshills/snipvault/internal/storage"
	"github.com/dshills/snipvault/pkg/types"
)

// ErrRegenerationInProgress is returned when a full run is already active
var ErrRegenerationInProgress = errors.New("regeneration already in progress")

// Models hands out the active generator
type Models interface {
	Acquire() (*model.Lease, error)
}

// Config contains configuration for the indexer
type Config struct {
	MaxChars int // Characters of snippet text fed to the generator (default: 2000)
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Statistics describes one regeneration run
type Statistics struct {
	Requested     int
	Regenerated   int
	Failed        int
	Duration      time.Duration
	ErrorMessages []string
}

// Indexer coordinates the embedding pipeline: lease -> generate -> store
type Indexer struct {
	storage  storage.Storage
	models   Models
	maxChars int
	metrics  *metrics.Metrics
	logger   *slog.Logger
	lock     RunLock
}

// New creates a new Indexer instance
func New(store storage.Storage, models Models, cfg Config) *Indexer {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 2000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		storage:  store,
		models:   models,
		maxChars: cfg.MaxChars,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Busy reports whether a full run is in progress
func (idx *Indexer) Busy() bool {
	return idx.lock.Held()
}

// EmbedSnippet computes the embedding record for snippet without storing it
func (idx *Indexer) EmbedSnippet(ctx context.Context, snippet *types.Snippet) (*storage.Embedding, error) {
	lease, err := idx.models.Acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	return idx.embed(ctx, lease.Generator(), snippet)
}

// IndexSnippet embeds snippet with the current model and stores the record
func (idx *Indexer) IndexSnippet(ctx context.Context, snippet *types.Snippet) error {
	emb, err := idx.EmbedSnippet(ctx, snippet)
	if err != nil {
		return err
	}
	if err := idx.storage.UpsertEmbedding(ctx, emb); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

func (idx *Indexer) embed(ctx context.Context, gen embedder.Embedder, snippet *types.Snippet) (*storage.Embedding, error) {
	vec, err := gen.Generate(ctx, snippet.EmbeddingText(idx.maxChars))
	if err != nil {
		return nil, err
	}
	return &storage.Embedding{
		SnippetID:    snippet.ID,
		Vector:       vec,
		ModelVersion: gen.Model(),
	}, nil
}

// Regenerate recomputes and stores embeddings for snippets with the current
// model. It fails up front when no model is available; per-snippet failures
// are counted in the statistics.
func (idx *Indexer) Regenerate(ctx context.Context, snippets []*types.Snippet) (*Statistics, error) {
	lease, err := idx.models.Acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	gen := lease.Generator()
	start := time.Now()
	stats := &Statistics{Requested: len(snippets)}

	for _, snippet := range snippets {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		err := idx.regenerateOne(ctx, gen, snippet)
		idx.metrics.RecordRegenerated(err)
		if err != nil {
			stats.Failed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("snippet %d: %v", snippet.ID, err))
			idx.logger.Warn("failed to regenerate embedding",
				"snippet_id", snippet.ID,
				"error", err)
			continue
		}
		stats.Regenerated++
	}

	stats.Duration = time.Since(start)
	idx.logger.Info("embedding regeneration finished",
		"model_version", gen.Model(),
		"requested", stats.Requested,
		"regenerated", stats.Regenerated,
		"failed", stats.Failed,
		"duration", stats.Duration)
	return stats, nil
}

func (idx *Indexer) regenerateOne(ctx context.Context, gen embedder.Embedder, snippet *types.Snippet) error {
	emb, err := idx.embed(ctx, gen, snippet)
	if err != nil {
		return err
	}
	if err := idx.storage.UpsertEmbedding(ctx, emb); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// RegenerateAll regenerates every stored snippet
func (idx *Indexer) RegenerateAll(ctx context.Context) (*Statistics, error) {
	return idx.exclusive(ctx, idx.storage.ListSnippets)
}

// Backfill embeds snippets that have no embedding record. Stale records are
// left for an explicit regeneration.
func (idx *Indexer) Backfill(ctx context.Context) (*Statistics, error) {
	return idx.exclusive(ctx, idx.storage.ListSnippetsWithoutEmbedding)
}

func (idx *Indexer) exclusive(ctx context.Context, list func(context.Context) ([]*types.Snippet, error)) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrRegenerationInProgress
	}
	defer idx.lock.Release()

	snippets, err := list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	return idx.Regenerate(ctx, snippets)
}
