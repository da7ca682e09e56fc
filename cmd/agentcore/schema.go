package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillrun/agentcore/internal/config"
)

// buildSchemaCmd prints the recognized configuration surface, either as
// the full JSON Schema (for editor integration and validation tooling)
// or as the flat list of dotted key paths Load accepts.
func buildSchemaCmd() *cobra.Command {
	var keysOnly bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration schema",
		Long: `Schema prints the recognized --config surface.

By default the full JSON Schema is emitted; --keys prints only the
dotted key paths (one per line), which is handy for grepping whether a
key exists before editing a config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keysOnly {
				fmt.Fprintln(os.Stdout, strings.Join(config.KnownKeys(), "\n"))
				return nil
			}
			data, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("reflect config schema: %w", err)
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&keysOnly, "keys", false, "Print dotted key paths instead of the JSON Schema")
	return cmd
}
