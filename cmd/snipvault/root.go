package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dshills/snipvault/internal/config"
	"github.com/dshills/snipvault/internal/metrics"
	"github.com/dshills/snipvault/internal/storage"
	"github.com/dshills/snipvault/internal/vault"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	cfgPath       string
	globalConfig  *config.Config
	globalLogger  *slog.Logger
	globalMetrics *metrics.Metrics
	globalVault   *vault.Vault
)

var rootCmd = &cobra.Command{
	Use:   "snipvault",
	Short: "Offline semantic search over your snippets",
	Long: `snipvault keeps a personal vault of text snippets and finds them by meaning
using a local sentence-embedding model. Nothing leaves the machine once the
model has been downloaded.

Without a loaded model, search falls back to substring matching.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		globalConfig = cfg

		// stdout is reserved for MCP on serve
		globalLogger = cfg.NewLogger(os.Stderr)
		slog.SetDefault(globalLogger)

		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		globalMetrics = m

		v, err := vault.Open(cfg, m, globalLogger)
		if err != nil {
			return fmt.Errorf("failed to open vault: %w", err)
		}
		globalVault = v
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if globalVault != nil {
			_ = globalVault.Close()
			globalVault = nil
		}
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("snipvault {{.Version}}\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\n",
		buildTime, storage.BuildMode, storage.DriverName))
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default: $XDG_CONFIG_HOME/snipvault/config.yaml)")
}
