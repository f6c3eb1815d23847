package main

import (
	"github.com/spf13/cobra"

	"recap/internal/api"
	"recap/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "recap",
	Short: "Spoiler-safe book summary generation pipeline",
	Long: `Recap generates cumulative, spoiler-safe summaries of books at fixed
reading-progress checkpoints using LLM providers.

For each registered book the pipeline walks a grid of progress
percentages in order, summarizing everything read so far and tracking
the characters introduced along the way. Readers query by how far they
have read and get back a summary that never reveals anything beyond
that point.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.recap/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "recap home directory (default: ~/.recap)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
