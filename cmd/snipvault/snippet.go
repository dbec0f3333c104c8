package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/snipvault/pkg/types"
)

var snippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Manage snippets",
	Long:  "Add, list, show, and remove snippets in the vault.",
}

var snippetAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a snippet",
	Long: `Add a snippet. The content comes from --content, --file, or stdin when
neither is given. With --embed the model is loaded first so the snippet is
searchable by meaning right away.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnippetAdd,
}

var snippetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snippets",
	RunE:  runSnippetList,
}

var snippetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one snippet",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnippetShow,
}

var snippetRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a snippet",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnippetRm,
}

// Flags
var (
	snippetContent     string
	snippetFile        string
	snippetLanguage    string
	snippetDescription string
	snippetTags        string
	snippetEmbed       bool
)

func init() {
	rootCmd.AddCommand(snippetCmd)
	snippetCmd.AddCommand(snippetAddCmd)
	snippetCmd.AddCommand(snippetListCmd)
	snippetCmd.AddCommand(snippetShowCmd)
	snippetCmd.AddCommand(snippetRmCmd)

	snippetAddCmd.Flags().StringVar(&snippetContent, "content", "", "snippet content")
	snippetAddCmd.Flags().StringVar(&snippetFile, "file", "", "read content from file")
	snippetAddCmd.Flags().StringVar(&snippetLanguage, "language", "text", "language of the content")
	snippetAddCmd.Flags().StringVar(&snippetDescription, "description", "", "optional description")
	snippetAddCmd.Flags().StringVar(&snippetTags, "tags", "", "comma separated tags")
	snippetAddCmd.Flags().BoolVar(&snippetEmbed, "embed", false, "load the model and embed the snippet")
}

func runSnippetAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	content, err := readContent(cmd)
	if err != nil {
		return err
	}

	if snippetEmbed {
		if err := globalVault.LoadModel(ctx); err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}
	}

	snippet := &types.Snippet{
		Title:       args[0],
		Content:     content,
		Language:    snippetLanguage,
		Description: snippetDescription,
		Tags:        snippetTags,
	}
	embedded, err := globalVault.CreateSnippet(ctx, snippet)
	if err != nil {
		return fmt.Errorf("failed to add snippet: %w", err)
	}

	fmt.Printf("Snippet %d added: %s\n", snippet.ID, snippet.Title)
	if !embedded {
		fmt.Println("No embedding stored; it will be generated when a model is loaded")
	}
	return nil
}

func readContent(cmd *cobra.Command) (string, error) {
	switch {
	case snippetContent != "" && snippetFile != "":
		return "", fmt.Errorf("--content and --file are mutually exclusive")
	case snippetContent != "":
		return snippetContent, nil
	case snippetFile != "":
		data, err := os.ReadFile(snippetFile)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", snippetFile, err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
}

func runSnippetList(cmd *cobra.Command, args []string) error {
	snippets, err := globalVault.ListSnippets(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list snippets: %w", err)
	}

	if len(snippets) == 0 {
		fmt.Println("No snippets found.")
		return nil
	}

	for _, s := range snippets {
		fmt.Printf("%5d  %-10s %s  %s\n", s.ID, s.Language, s.UpdatedAt.Format("2006-01-02"), s.Title)
	}
	return nil
}

func runSnippetShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	s, err := globalVault.GetSnippet(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to get snippet %d: %w", id, err)
	}

	fmt.Printf("# %s\n", s.Title)
	fmt.Printf("id: %d  language: %s  updated: %s\n", s.ID, s.Language, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	if s.Tags != "" {
		fmt.Printf("tags: %s\n", s.Tags)
	}
	if s.Description != "" {
		fmt.Printf("\n%s\n", s.Description)
	}
	fmt.Printf("\n%s\n", strings.TrimRight(s.Content, "\n"))
	return nil
}

func runSnippetRm(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := globalVault.DeleteSnippet(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to remove snippet %d: %w", id, err)
	}
	fmt.Printf("Snippet %d removed\n", id)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid snippet id %q", s)
	}
	return id, nil
}
