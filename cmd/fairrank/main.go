// Package main provides the fairrank command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricesearch/fairrank/internal/config"
	"github.com/ricesearch/fairrank/internal/evaluation"
	"github.com/ricesearch/fairrank/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitError = 1
	exitInput = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fairrank",
		Short: "fairrank - group fairness metrics for rankings",
		Long: `fairrank measures how exposure and relevance are shared between the groups
of a sensitive feature in a ranked list.

Run 'fairrank evaluate hiring.yaml' to audit a dataset file.
Run 'fairrank --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		evaluateCmd(),
		watchCmd(),
		qdrantCmd(),
		eventsCmd(),
		versionCmd(),
	)

	return rootCmd
}

func exitCode(err error) int {
	if evaluation.IsInputError(err) {
		return exitInput
	}
	return exitError
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fairrank %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

// setup loads configuration and builds the logger shared by all commands.
// Logs go to stderr so stdout only carries reports.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	return cfg, logger.NewWithWriter(os.Stderr, level, "text"), nil
}
