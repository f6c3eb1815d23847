package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/home"
	"recap/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Recap server",
	Long: `Start the Recap HTTP server.

The server owns the SQLite database and runs generation pipelines in
the background. Configuration is hot-reloaded when the config file
changes, so generator API keys and rate limits can be updated without
a restart.

Examples:
  recap serve                    # Start with defaults
  recap serve --home /tmp/recap  # Use an alternate home directory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		srv, err := server.New(server.Config{
			ConfigManager: cm,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Blocks until shutdown
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
