// Package main provides the CLI entry point for agentcore, a Skills-first
// agent execution engine: a cobra root command with slog JSON logging and
// ldflags-populated build info, exposing run (drive a task to
// completion), replay (stream a past run's event journal), and schema
// (print the recognized configuration surface).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "agentcore",
		Short:   "agentcore - Skills-first agent execution engine",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `agentcore drives one agent task at a time through the LLM/tool loop,
persisting every event to an append-only WAL and replaying it back on request.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd(), buildReplayCmd(), buildSchemaCmd())
	return root
}
