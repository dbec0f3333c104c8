package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dshills/snipvault/internal/embedder"
	"github.com/dshills/snipvault/internal/metrics"
	"github.com/dshills/snipvault/internal/storage"
	"github.com/dshills/snipvault/pkg/types"
)

// SearchMode describes how results were produced
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic" // Vector similarity against cached embeddings
	SearchModeText     SearchMode = "text"     // Substring match, used while no model is loaded
)

// DefaultMinScore is the similarity floor; results at or below it are dropped
const DefaultMinScore = 0.3

// TextScore is the score given to every substring match
const TextScore = 1.0

// Options controls ranking
type Options struct {
	MinScore     float64
	ModelVersion string // Records tagged with any other version are ignored
	Limit        int    // Zero returns every result
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult `json:"results"`
	TotalResults int                  `json:"total_results"`
	SearchMode   SearchMode           `json:"search_mode"`
	Duration     time.Duration        `json:"duration"`
}

// Config holds searcher settings
type Config struct {
	MinScore float64 // Zero selects DefaultMinScore
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Searcher ranks snippets against a query
type Searcher struct {
	minScore float64
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewSearcher creates a new Searcher instance
func NewSearcher(cfg Config) *Searcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = DefaultMinScore
	}
	return &Searcher{
		minScore: cfg.MinScore,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// MinScore returns the configured similarity floor
func (s *Searcher) MinScore() float64 {
	return s.minScore
}

// SemanticSearch embeds query with gen and ranks snippets by the similarity
// of their cached vectors. Snippets without a record for gen's model version
// are left out. A generation failure is returned as is.
func (s *Searcher) SemanticSearch(ctx context.Context, gen embedder.Embedder, query string, snippets []*types.Snippet, records []*storage.Embedding, limit int) (*SearchResponse, error) {
	start := time.Now()

	vector, err := gen.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	results := Rank(vector, snippets, records, Options{
		MinScore:     s.minScore,
		ModelVersion: gen.Model(),
		Limit:        limit,
	})

	duration := time.Since(start)
	s.metrics.RecordSearch(string(SearchModeSemantic), duration, len(results))
	s.logger.Debug("semantic search",
		"results", len(results),
		"candidates", len(snippets),
		"records", len(records),
		"duration", duration)

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		SearchMode:   SearchModeSemantic,
		Duration:     duration,
	}, nil
}

// TextResults wraps substring matches as results with score 1.0
func (s *Searcher) TextResults(snippets []*types.Snippet, duration time.Duration) *SearchResponse {
	results := make([]types.SearchResult, 0, len(snippets))
	for _, sn := range snippets {
		results = append(results, types.SearchResult{Snippet: *sn, Score: TextScore})
	}
	s.metrics.RecordSearch(string(SearchModeText), duration, len(results))
	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		SearchMode:   SearchModeText,
		Duration:     duration,
	}
}

// Rank scores each snippet that has a record for opts.ModelVersion by the dot
// product of the normalized vectors, clamped to [-1, 1]. Scores at or below
// opts.MinScore are dropped. The result is sorted by descending score; ties
// keep snippet order.
func Rank(query []float32, snippets []*types.Snippet, records []*storage.Embedding, opts Options) []types.SearchResult {
	results := make([]types.SearchResult, 0)
	if len(records) == 0 || len(snippets) == 0 {
		return results
	}

	vectors := make(map[int64][]float32, len(records))
	for _, r := range records {
		if r.ModelVersion != opts.ModelVersion || len(r.Vector) != len(query) {
			continue // stale
		}
		vectors[r.SnippetID] = r.Vector
	}

	for _, sn := range snippets {
		v, ok := vectors[sn.ID]
		if !ok {
			continue
		}
		score := clamp(embedder.Dot(query, v))
		if score <= opts.MinScore {
			continue
		}
		results = append(results, types.SearchResult{Snippet: *sn, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
