package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/snipvault/pkg/types"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the embedding model",
	Long:  "Download, load, and inspect the local sentence-embedding model.",
}

var modelPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the model files",
	Long:  "Fetch model.onnx and tokenizer.json if either is missing. Nothing is loaded.",
	RunE:  runModelPull,
}

var modelLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the model and backfill embeddings",
	Long: `Load the model, downloading it first if needed, and embed snippets that
have no embedding yet. Use it to check that the model and onnxruntime work.`,
	RunE: runModelLoad,
}

var modelStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show model status",
	RunE:  runModelStatus,
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelPullCmd)
	modelCmd.AddCommand(modelLoadCmd)
	modelCmd.AddCommand(modelStatusCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runModelPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	info, err := globalVault.DownloadModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	printModelInfo(info)
	return nil
}

func runModelLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := globalVault.LoadModel(ctx); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	printModelInfo(globalVault.ModelStatus())
	return nil
}

func runModelStatus(cmd *cobra.Command, args []string) error {
	printModelInfo(globalVault.ModelStatus())

	status, err := globalVault.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	fmt.Printf("Embeddings: %d current, %d stale, %d missing (of %d snippets)\n",
		status.CurrentEmbeddings, status.StaleEmbeddings, status.MissingEmbeddings, status.SnippetsCount)
	return nil
}

func printModelInfo(info types.ModelInfo) {
	fmt.Printf("Model:      %s\n", info.Name)
	fmt.Printf("Version:    %s\n", info.Version)
	fmt.Printf("Downloaded: %v\n", info.Downloaded)
	if info.Downloaded {
		fmt.Printf("Path:       %s\n", info.Path)
		fmt.Printf("Size:       %.1f MB\n", float64(info.SizeBytes)/(1024*1024))
	}
	fmt.Printf("State:      %s\n", info.State)
}
