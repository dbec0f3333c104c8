package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/snipvault/internal/searcher"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search snippets",
	Long: `Search snippets by meaning. The model is loaded for the search unless
--text is given; if it cannot be loaded the search falls back to substring
matching.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Recompute all embeddings",
	Long:  "Load the model and recompute the embedding of every snippet, replacing stale ones.",
	RunE:  runRegenerate,
}

var (
	searchLimit int
	searchText  bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(regenerateCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchText, "text", false, "substring search only, without loading the model")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	query := strings.Join(args, " ")

	if !searchText {
		if err := globalVault.LoadModel(ctx); err != nil {
			globalLogger.Warn("model unavailable, using text search", "error", err)
		}
	}

	var (
		resp *searcher.SearchResponse
		err  error
	)
	if searchText {
		resp, err = globalVault.TextSearch(ctx, query, searchLimit)
	} else {
		resp, err = globalVault.Search(ctx, query, searchLimit)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(resp.Results) == 0 {
		fmt.Println("No matching snippets found.")
		return nil
	}

	for i, r := range resp.Results {
		fmt.Printf("%2d. [%.3f] #%d %s\n", i+1, r.Score, r.Snippet.ID, r.Snippet.Title)
	}
	fmt.Printf("\n%d results (%s search, %s)\n", resp.TotalResults, resp.SearchMode, resp.Duration.Round(time.Microsecond))
	return nil
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := globalVault.LoadModel(ctx); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	stats, err := globalVault.RegenerateAll(ctx)
	if err != nil {
		return fmt.Errorf("regeneration failed: %w", err)
	}

	fmt.Printf("Regenerated %d of %d embeddings in %s\n", stats.Regenerated, stats.Requested, stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.ErrorMessages {
		fmt.Printf("  failed: %s\n", msg)
	}
	return nil
}
