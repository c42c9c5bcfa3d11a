// Package main provides the entry point for the document feedback service and its operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/doc-feedback/internal/config"
)

// cfg is loaded once before any subcommand runs
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "feedback_agent",
	Short:         "AI feedback for student Google Docs",
	Long:          "feedback_agent reads a student's Google Doc, generates rubric-based feedback with Gemini and writes it back into the document as highlighted blocks.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
