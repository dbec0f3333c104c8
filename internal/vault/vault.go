package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/snipvault/internal/config"
	"github.com/dshills/snipvault/internal/embedder"
	"github.com/dshills/snipvault/internal/indexer"
	"github.com/dshills/snipvault/internal/metrics"
	"github.com/dshills/snipvault/internal/model"
	"github.com/dshills/snipvault/internal/searcher"
	"github.com/dshills/snipvault/internal/storage"
	"github.com/dshills/snipvault/internal/tokenizer"
	"github.com/dshills/snipvault/pkg/types"
)

// ErrEmptyQuery is returned for blank search queries
var ErrEmptyQuery = errors.New("query cannot be empty")

// Options wires a Vault from already constructed components
type Options struct {
	Store          storage.Storage
	Models         *model.Manager
	MinScore       float64 // Zero selects searcher.DefaultMinScore
	MaxChars       int
	BackfillOnLoad bool
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Vault owns the store and the model manager
type Vault struct {
	store    storage.Storage
	models   *model.Manager
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	backfill bool
	logger   *slog.Logger
}

// New creates a vault from opts
func New(opts Options) (*Vault, error) {
	if opts.Store == nil || opts.Models == nil {
		return nil, errors.New("vault requires a store and a model manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Vault{
		store:  opts.Store,
		models: opts.Models,
		indexer: indexer.New(opts.Store, opts.Models, indexer.Config{
			MaxChars: opts.MaxChars,
			Metrics:  opts.Metrics,
			Logger:   logger,
		}),
		searcher: searcher.NewSearcher(searcher.Config{
			MinScore: opts.MinScore,
			Metrics:  opts.Metrics,
			Logger:   logger,
		}),
		backfill: opts.BackfillOnLoad,
		logger:   logger,
	}, nil
}

// Open builds a vault from configuration: the SQLite store at cfg.DBPath and
// a model manager backed by onnxruntime. The model is not loaded.
func Open(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	factory := embedder.DefaultFactory(cfg.Embedding.Dimension, tokenizer.Options{
		AddSpecialTokens: cfg.Embedding.AddSpecialTokens,
		MaxTokens:        cfg.Embedding.MaxTokens,
	}, cfg.Model.ORTLibrary)

	models, err := model.NewManager(model.Config{
		Name:        cfg.Model.Name,
		Version:     cfg.Model.Version,
		Dir:         cfg.Model.Dir,
		BaseURL:     cfg.Model.BaseURL,
		WeightsPath: cfg.Model.WeightsPath,
		Timeout:     cfg.Model.DownloadTimeout,
		Generator: embedder.Config{
			Dimension: cfg.Embedding.Dimension,
			MaxChars:  cfg.Embedding.MaxChars,
			CacheSize: cfg.Embedding.CacheSize,
		},
		Factory: factory,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return New(Options{
		Store:          store,
		Models:         models,
		MinScore:       cfg.Search.MinScore,
		MaxChars:       cfg.Embedding.MaxChars,
		BackfillOnLoad: cfg.Model.BackfillOnLoad,
		Metrics:        m,
		Logger:         logger,
	})
}

// Close unloads the model and closes the store
func (v *Vault) Close() error {
	_ = v.models.Close()
	return v.store.Close()
}

// Model lifecycle

// LoadModel loads the model, downloading it first when needed. Snippets
// without an embedding are then backfilled when configured; backfill
// problems are logged, not returned.
func (v *Vault) LoadModel(ctx context.Context) error {
	if err := v.models.Load(ctx); err != nil {
		return err
	}
	if !v.backfill {
		return nil
	}

	stats, err := v.indexer.Backfill(ctx)
	switch {
	case errors.Is(err, indexer.ErrRegenerationInProgress):
		v.logger.Info("skipping backfill, regeneration in progress")
	case err != nil:
		v.logger.Warn("embedding backfill failed", "error", err)
	case stats.Requested > 0:
		v.logger.Info("backfilled embeddings", "regenerated", stats.Regenerated, "failed", stats.Failed)
	}
	return nil
}

// UnloadModel drops the loaded model
func (v *Vault) UnloadModel() {
	v.models.Unload()
}

// IsLoaded reports whether semantic operations are available
func (v *Vault) IsLoaded() bool {
	return v.models.IsLoaded()
}

// DownloadModel fetches missing artifacts without loading them
func (v *Vault) DownloadModel(ctx context.Context) (types.ModelInfo, error) {
	if _, err := v.models.EnsureArtifacts(ctx); err != nil {
		return v.models.Status(), err
	}
	return v.models.Status(), nil
}

// ModelStatus describes the model on disk and in memory
func (v *Vault) ModelStatus() types.ModelInfo {
	return v.models.Status()
}

// GenerateEmbedding embeds arbitrary text with the loaded model
func (v *Vault) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	lease, err := v.models.Acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	return lease.Generator().Generate(ctx, text)
}

// Search

// SemanticSearch ranks all snippets against query. It fails when no model
// is loaded.
func (v *Vault) SemanticSearch(ctx context.Context, query string, limit int) (*searcher.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	lease, err := v.models.Acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	return v.semanticSearch(ctx, lease.Generator(), query, limit)
}

func (v *Vault) semanticSearch(ctx context.Context, gen embedder.Embedder, query string, limit int) (*searcher.SearchResponse, error) {
	snippets, err := v.store.ListSnippets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	records, err := v.store.ListEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	return v.searcher.SemanticSearch(ctx, gen, query, snippets, records, limit)
}

// Search runs a semantic search when a model is loaded and falls back to a
// substring search otherwise
func (v *Vault) Search(ctx context.Context, query string, limit int) (*searcher.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	lease, err := v.models.Acquire()
	switch {
	case err == nil:
		defer lease.Release()
		return v.semanticSearch(ctx, lease.Generator(), query, limit)
	case errors.Is(err, model.ErrNotLoaded), errors.Is(err, model.ErrLoading):
		v.logger.Debug("model unavailable, using text search", "reason", err)
		return v.TextSearch(ctx, query, limit)
	default:
		return nil, err
	}
}

// TextSearch matches query as a substring of snippet fields
func (v *Vault) TextSearch(ctx context.Context, query string, limit int) (*searcher.SearchResponse, error) {
	start := time.Now()
	snippets, err := v.store.SearchSnippets(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search snippets: %w", err)
	}
	return v.searcher.TextResults(snippets, time.Since(start)), nil
}

// Embeddings

// RegenerateEmbeddings recomputes embeddings for snippets and returns how
// many were stored. It fails only when no model is loaded.
func (v *Vault) RegenerateEmbeddings(ctx context.Context, snippets []*types.Snippet) (int, error) {
	stats, err := v.indexer.Regenerate(ctx, snippets)
	if stats == nil {
		return 0, err
	}
	return stats.Regenerated, err
}

// RegenerateAll recomputes every embedding with the loaded model
func (v *Vault) RegenerateAll(ctx context.Context) (*indexer.Statistics, error) {
	return v.indexer.RegenerateAll(ctx)
}

// Status reports snippet and embedding counts against the configured model
// version
func (v *Vault) Status(ctx context.Context) (*storage.Status, error) {
	return v.store.GetStatus(ctx, v.models.Version())
}

// Snippets

// CreateSnippet stores snippet and, when a model is loaded, its embedding.
// embedded reports whether a vector was stored; an embedding failure leaves
// the snippet in place without one.
func (v *Vault) CreateSnippet(ctx context.Context, snippet *types.Snippet) (embedded bool, err error) {
	if err := snippet.Validate(); err != nil {
		return false, err
	}
	if err := v.store.CreateSnippet(ctx, snippet); err != nil {
		return false, err
	}

	if err := v.indexer.IndexSnippet(ctx, snippet); err != nil {
		v.logEmbedFailure(snippet.ID, err)
		return false, nil
	}
	return true, nil
}

// UpdateSnippet stores the new snippet fields. The embedding is recomputed
// when a model is loaded; otherwise the outdated vector is removed so it can
// be backfilled later. embedded reports whether a fresh vector was stored.
func (v *Vault) UpdateSnippet(ctx context.Context, snippet *types.Snippet) (embedded bool, err error) {
	if err := snippet.Validate(); err != nil {
		return false, err
	}

	emb, embErr := v.indexer.EmbedSnippet(ctx, snippet)
	if embErr != nil {
		v.logEmbedFailure(snippet.ID, embErr)
	}

	tx, err := v.store.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpdateSnippet(ctx, snippet); err != nil {
		return false, err
	}

	if emb != nil {
		if err := tx.UpsertEmbedding(ctx, emb); err != nil {
			v.logEmbedFailure(snippet.ID, err)
			emb = nil
		}
	}
	if emb == nil {
		if err := tx.DeleteEmbedding(ctx, snippet.ID); err != nil {
			return false, fmt.Errorf("failed to drop outdated embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return emb != nil, nil
}

func (v *Vault) logEmbedFailure(id int64, err error) {
	if errors.Is(err, model.ErrNotLoaded) || errors.Is(err, model.ErrLoading) {
		v.logger.Debug("no model loaded, snippet stored without embedding", "snippet_id", id)
		return
	}
	v.logger.Warn("failed to embed snippet", "snippet_id", id, "error", err)
}

// DeleteSnippet removes a snippet and its embedding
func (v *Vault) DeleteSnippet(ctx context.Context, id int64) error {
	return v.store.DeleteSnippet(ctx, id)
}

// GetSnippet returns one snippet
func (v *Vault) GetSnippet(ctx context.Context, id int64) (*types.Snippet, error) {
	return v.store.GetSnippet(ctx, id)
}

// ListSnippets returns all snippets, newest first
func (v *Vault) ListSnippets(ctx context.Context) ([]*types.Snippet, error) {
	return v.store.ListSnippets(ctx)
}
