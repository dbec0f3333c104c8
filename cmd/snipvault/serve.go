package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcppkg "github.com/dshills/snipvault/internal/mcp"
)

var (
	serveMetricsAddr string
	serveLoadModel   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP server (stdio mode)",
	Long: `Start the Model Context Protocol server for AI agent integration.

The server speaks MCP over stdio; logs go to stderr. With --load-model the
embedding model is loaded in the background, and search answers in text mode
until it is ready.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "address for the prometheus /metrics endpoint (default: metrics.addr from config)")
	serveCmd.Flags().BoolVar(&serveLoadModel, "load-model", false, "load the embedding model at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	globalLogger.Info("snipvault starting", "version", version, "db", globalConfig.DBPath)

	addr := serveMetricsAddr
	if addr == "" {
		addr = globalConfig.Metrics.Addr
	}
	if addr != "" {
		go func() {
			if err := globalMetrics.Serve(ctx, addr, globalLogger); err != nil {
				globalLogger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	if serveLoadModel {
		go func() {
			if err := globalVault.LoadModel(ctx); err != nil {
				globalLogger.Error("model load failed, search stays in text mode", "error", err)
			}
		}()
	}

	server, err := mcppkg.NewServer(globalVault, globalLogger)
	if err != nil {
		return err
	}

	err = server.Serve(ctx)
	globalLogger.Info("server stopped")
	return err
}
