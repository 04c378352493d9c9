// Package main provides the CLI entry point for the turn engine.
//
// The turn engine runs a single conversational turn through a fixed
// pipeline: input sanitization, skill routing, context building, the
// agentic tool loop, memory persistence, and response routing back to the
// originating channel.
//
// # Basic usage
//
// Start the server:
//
//	turnengine serve --config turnengine.yaml
//
// # Environment variables
//
//   - TURNENGINE_CONFIG: path to the configuration file
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY: LLM provider credentials, when
//     referenced from config via "env:VAR_NAME"
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "turnengine",
		Short:        "Turn engine - conversational agent turn execution server",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}
