// Package cmd contains the docent CLI commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/docent-ai/docent/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "docent",
	Short: "Docent - retrieval-augmented assistant service",
	Long: `Docent answers questions with an LLM grounded in your uploaded
documents, with live weather and time tools for what the documents
cannot cover. Run "docent serve" to start the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	slog.SetDefault(initLogger())
	return rootCmd.Execute()
}

// initLogger builds the default logger. DEBUG in the environment enables
// debug level.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
