// Package indexer keeps snippet embeddings in step with the loaded model.
//
// It turns snippets into embedding records through a leased generator and
// writes them to storage:
//
//	emb, err := idx.EmbedSnippet(ctx, snippet)   // one snippet, nothing written
//	err := idx.IndexSnippet(ctx, snippet)        // one snippet, stored
//	stats, err := idx.Regenerate(ctx, snippets)  // explicit list
//	stats, err := idx.RegenerateAll(ctx)         // every snippet
//	stats, err := idx.Backfill(ctx)              // snippets without a record
//
// # Regeneration
//
// A regeneration run holds one lease for its whole duration, so a model
// swapped in mid-run does not mix versions within the run. Snippets are
// processed one at a time. A failure on one snippet is logged with its id and
// counted, and the run moves on. The run stops early only when the context
// is cancelled.
//
// RegenerateAll and Backfill are exclusive: a second call while one is in
// progress fails with ErrRegenerationInProgress.
package indexer
