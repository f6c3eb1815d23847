package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/home"
	"recap/internal/pipeline"
	"recap/internal/providers"
	"recap/internal/server"
	"recap/internal/store"
)

var (
	processRetry      bool
	processRegenerate bool
)

var processCmd = &cobra.Command{
	Use:   "process <book-id>",
	Short: "Run checkpoint generation for a book without the server",
	Long: `Run the generation pipeline for a registered book directly,
without going through the HTTP server.

The command takes the home directory lock, so it cannot run while a
server owns the same home. Progress is logged per checkpoint and the
final report is printed when the run finishes.

Examples:
  recap process <book-id>               # Generate missing checkpoints
  recap process <book-id> --retry       # Clear failed checkpoints first
  recap process <book-id> --regenerate  # Start a fresh version`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bookID := args[0]

		if processRetry && processRegenerate {
			return fmt.Errorf("--retry and --regenerate are mutually exclusive")
		}

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
		if err := h.Lock(); err != nil {
			return err
		}
		defer h.Unlock()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		dbPath := cfg.Storage.DatabasePath
		if dbPath == "" {
			dbPath = h.DatabasePath()
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		registry := providers.NewRegistry()
		registry.SetLogger(logger)
		registry.Reload(cfg.ToRegistryConfig())

		orch := pipeline.NewOrchestrator(st, registry, nil, server.PipelineConfig(cfg), logger)

		var report *pipeline.Report
		switch {
		case processRetry:
			report, err = orch.RetryFailed(ctx, bookID)
		case processRegenerate:
			report, err = orch.Regenerate(ctx, bookID)
		default:
			report, err = orch.Run(ctx, bookID)
		}
		if report != nil {
			fmt.Printf("book %s version %d: %d completed, %d skipped of %d (%s)\n",
				report.BookID, report.Version, report.Completed, report.Skipped,
				report.Total, report.Duration.Round(time.Millisecond))
			if report.HaltedAt > 0 {
				fmt.Printf("halted at %d%% checkpoint\n", report.HaltedAt)
			}
		}
		return err
	},
}

func init() {
	processCmd.Flags().BoolVar(&processRetry, "retry", false, "reset failed checkpoints before running")
	processCmd.Flags().BoolVar(&processRegenerate, "regenerate", false, "bump the book version and regenerate everything")

	rootCmd.AddCommand(processCmd)
}
