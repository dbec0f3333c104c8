package searcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/snipvault/internal/embedder"
	"github.com/dshills/snipvault/internal/embedder/embeddertest"
	"github.com/dshills/snipvault/internal/storage"
	"github.com/dshills/snipvault/pkg/types"
)

func snippets(ids ...int64) []*types.Snippet {
	out := make([]*types.Snippet, len(ids))
	for i, id := range ids {
		out[i] = &types.Snippet{ID: id, Title: "snippet"}
	}
	return out
}

func record(id int64, version string, v ...float32) *storage.Embedding {
	return &storage.Embedding{SnippetID: id, ModelVersion: version, Vector: v}
}

func ids(results []types.SearchResult) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.Snippet.ID
	}
	return out
}

func TestRank_SortsDescending(t *testing.T) {
	query := []float32{1, 0}
	records := []*storage.Embedding{
		record(1, "v1", 0.5, 0.866),
		record(2, "v1", 0.96, 0.28),
		record(3, "v1", 0.8, 0.6),
	}

	results := Rank(query, snippets(1, 2, 3), records, Options{MinScore: 0.3, ModelVersion: "v1"})
	assert.Equal(t, []int64{2, 3, 1}, ids(results))
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRank_DropsAtOrBelowFloor(t *testing.T) {
	query := []float32{1, 0}
	records := []*storage.Embedding{
		record(1, "v1", 0.5, 0.866),  // exactly at the floor
		record(2, "v1", 0.25, 0.968), // below
		record(3, "v1", -0.9, 0.43),  // negative
		record(4, "v1", 0.75, 0.66),  // above
	}

	results := Rank(query, snippets(1, 2, 3, 4), records, Options{MinScore: 0.5, ModelVersion: "v1"})
	assert.Equal(t, []int64{4}, ids(results))
	for _, r := range results {
		assert.Greater(t, r.Score, 0.5)
	}
}

func TestRank_StableOnTies(t *testing.T) {
	query := []float32{1, 0}
	records := []*storage.Embedding{
		record(7, "v1", 0.6, 0.8),
		record(3, "v1", 0.6, 0.8),
		record(5, "v1", 0.6, 0.8),
	}

	results := Rank(query, snippets(5, 7, 3), records, Options{MinScore: 0.3, ModelVersion: "v1"})
	assert.Equal(t, []int64{5, 7, 3}, ids(results), "ties keep snippet order")
}

func TestRank_ExcludesStaleAndMissing(t *testing.T) {
	query := []float32{1, 0}
	records := []*storage.Embedding{
		record(1, "v1", 1, 0),
		record(2, "v0", 1, 0),    // stale version
		record(3, "v1", 1, 0, 0), // wrong dimension
		record(99, "v1", 1, 0),   // no snippet
	}

	results := Rank(query, snippets(1, 2, 3, 4), records, Options{MinScore: 0.3, ModelVersion: "v1"})
	assert.Equal(t, []int64{1}, ids(results))
}

func TestRank_ClampsScore(t *testing.T) {
	query := []float32{1, 0}
	records := []*storage.Embedding{record(1, "v1", 1.5, 0)}

	results := Rank(query, snippets(1), records, Options{MinScore: 0.3, ModelVersion: "v1"})
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Score)
	assert.NoError(t, results[0].Validate())
}

func TestRank_EmptyInputs(t *testing.T) {
	results := Rank([]float32{1}, snippets(1), nil, Options{MinScore: 0.3})
	require.NotNil(t, results)
	assert.Empty(t, results)

	results = Rank([]float32{1}, nil, []*storage.Embedding{record(1, "", 1)}, Options{MinScore: 0.3})
	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRank_Limit(t *testing.T) {
	query := []float32{1, 0}
	records := []*storage.Embedding{
		record(1, "v1", 0.6, 0.8),
		record(2, "v1", 0.8, 0.6),
		record(3, "v1", 1, 0),
	}

	results := Rank(query, snippets(1, 2, 3), records, Options{MinScore: 0.3, ModelVersion: "v1", Limit: 2})
	assert.Equal(t, []int64{3, 2}, ids(results))
}

func TestRank_CopiesSnippet(t *testing.T) {
	in := snippets(1)
	results := Rank([]float32{1}, in, []*storage.Embedding{record(1, "v1", 1)}, Options{ModelVersion: "v1"})
	require.Len(t, results, 1)

	in[0].Title = "changed"
	assert.Equal(t, "snippet", results[0].Snippet.Title)
	assert.Nil(t, results[0].Highlight)
}

// embedAll stores a record for every snippet using gen
func embedAll(t *testing.T, gen *embedder.Generator, list []*types.Snippet) []*storage.Embedding {
	t.Helper()
	records := make([]*storage.Embedding, 0, len(list))
	for _, sn := range list {
		v, err := gen.Generate(context.Background(), sn.EmbeddingText(2000))
		require.NoError(t, err)
		records = append(records, &storage.Embedding{SnippetID: sn.ID, Vector: v, ModelVersion: gen.Model()})
	}
	return records
}

func TestSemanticSearch_RelatedSnippetRanksFirst(t *testing.T) {
	gen := embeddertest.NewGenerator("v1", embeddertest.NewBasisSession())
	defer gen.Close()

	a := &types.Snippet{ID: 1, Title: "Binary search", Content: "binary search algorithm implementation"}
	b := &types.Snippet{ID: 2, Title: "Cake", Content: "recipe for chocolate cake"}
	c := &types.Snippet{ID: 3, Title: "Sorting notes", Content: "sorting algorithm efficiency"}
	records := embedAll(t, gen, []*types.Snippet{a, b})

	s := NewSearcher(Config{MinScore: DefaultMinScore})
	resp, err := s.SemanticSearch(context.Background(), gen, "sorting algorithm efficiency",
		[]*types.Snippet{a, b, c}, records, 0)
	require.NoError(t, err)

	assert.Equal(t, SearchModeSemantic, resp.SearchMode)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, int64(1), resp.Results[0].Snippet.ID)
	assert.NotContains(t, ids(resp.Results), int64(3), "snippet without a record is excluded")
	if len(resp.Results) > 1 {
		assert.Equal(t, int64(2), resp.Results[1].Snippet.ID)
	}
	assert.Equal(t, len(resp.Results), resp.TotalResults)
}

func TestSemanticSearch_IgnoresOtherVersion(t *testing.T) {
	oldGen := embeddertest.NewGenerator("v1", embeddertest.NewBasisSession())
	newGen := embeddertest.NewGenerator("v2", embeddertest.NewBasisSession())

	a := &types.Snippet{ID: 1, Title: "Binary search", Content: "binary search algorithm implementation"}
	records := embedAll(t, oldGen, []*types.Snippet{a})

	s := NewSearcher(Config{MinScore: DefaultMinScore})
	resp, err := s.SemanticSearch(context.Background(), newGen, "binary search", []*types.Snippet{a}, records, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSemanticSearch_GeneratorError(t *testing.T) {
	session := embeddertest.NewBasisSession()
	session.Fail = true
	gen := embeddertest.NewGenerator("v1", session)

	s := NewSearcher(Config{MinScore: DefaultMinScore})
	_, err := s.SemanticSearch(context.Background(), gen, "anything", snippets(1), nil, 0)
	assert.ErrorIs(t, err, embedder.ErrInference)
}

func TestTextResults(t *testing.T) {
	s := NewSearcher(Config{})
	resp := s.TextResults(snippets(4, 2), time.Millisecond)

	assert.Equal(t, SearchModeText, resp.SearchMode)
	assert.Equal(t, []int64{4, 2}, ids(resp.Results))
	for _, r := range resp.Results {
		assert.Equal(t, 1.0, r.Score)
		assert.Nil(t, r.Highlight)
	}

	empty := s.TextResults(nil, 0)
	assert.NotNil(t, empty.Results)
	assert.Zero(t, empty.TotalResults)
}

// fixedEmbedder returns the same vector for every query
type fixedEmbedder struct {
	vector []float32
	model  string
}

func (f *fixedEmbedder) Generate(context.Context, string) ([]float32, error) { return f.vector, nil }
func (f *fixedEmbedder) Dimension() int                                      { return len(f.vector) }
func (f *fixedEmbedder) Model() string                                       { return f.model }
func (f *fixedEmbedder) Close() error                                        { return nil }

func TestNewSearcher_DefaultFloor(t *testing.T) {
	gen := &fixedEmbedder{vector: []float32{1, 0}, model: "v1"}
	records := []*storage.Embedding{
		record(1, "v1", 0.1, 0.995),
		record(2, "v1", 0.8, 0.6),
	}

	s := NewSearcher(Config{})
	assert.InDelta(t, DefaultMinScore, s.MinScore(), 1e-9)

	resp, err := s.SemanticSearch(context.Background(), gen, "q", snippets(1, 2), records, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(resp.Results))
	for _, r := range resp.Results {
		assert.Greater(t, r.Score, DefaultMinScore)
	}

	lenient := NewSearcher(Config{MinScore: 0.05})
	resp, err = lenient.SemanticSearch(context.Background(), gen, "q", snippets(1, 2), records, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, ids(resp.Results))
}
