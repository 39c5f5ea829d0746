// Package cli provides the replicactl command-line interface for operating the
// content engine: offline chunk previews, synchronous ingestion, retrieval checks
// and an MCP stdio server for agent integrations.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/danieledinun/aitreon-sub004/internal/bootstrap"
	"github.com/danieledinun/aitreon-sub004/internal/config"
	"github.com/danieledinun/aitreon-sub004/internal/observability/logging"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool
	logFile string

	cfg      config.Config
	app      *bootstrap.App
	closeLog func() error
)

var rootCmd = &cobra.Command{
	Use:   "replicactl",
	Short: "Operate the creator replica content engine",
	Long: `replicactl chunks creator transcripts into citable passages, ingests them
into the passage and graph stores, and answers retrieval queries the same way
the API does.

Configuration is read from the same environment variables as the api and worker.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, closer := logging.NewCLILogger(level, logFile)
		slog.SetDefault(logger)
		closeLog = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
			app = nil
		}
		if closeLog != nil {
			if err := closeLog(); err != nil {
				slog.Warn("log_file_close_failed", "error", err)
			}
			closeLog = nil
		}
	},
}

// getApp connects the infrastructure on first use so offline commands stay offline.
func getApp(ctx context.Context) (*bootstrap.App, error) {
	if app != nil {
		return app, nil
	}
	a, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	app = a
	return app, nil
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")

	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(mcpCmd)
}
