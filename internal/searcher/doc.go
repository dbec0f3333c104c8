// Package searcher ranks snippets against a query vector.
//
// Ranking is a linear scan: every snippet with a cached embedding for the
// loaded model version is scored by the dot product of the two normalized
// vectors (their cosine similarity), clamped to [-1, 1]. Scores at or below
// the configured floor (0.3 by default) are dropped and the rest are sorted
// by descending score. Equal scores keep the order the snippets were given
// in.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(searcher.Config{MinScore: searcher.DefaultMinScore})
//
//	resp, err := s.SemanticSearch(ctx, gen, "sorting algorithm efficiency", snippets, records, 10)
//	if err != nil {
//	    return err
//	}
//	for _, r := range resp.Results {
//	    fmt.Printf("%.2f %s\n", r.Score, r.Snippet.Title)
//	}
//
// # Stale Records
//
// A record produced by a different model version is not comparable with the
// query vector. Rank skips it as if it did not exist; it comes back once the
// embedding is regenerated.
//
// # Text Results
//
// When no model is loaded callers fall back to substring search and wrap the
// matches with TextResults. Every such result has score 1.0 and no
// highlight.
package searcher
