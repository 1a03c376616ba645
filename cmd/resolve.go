package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ptrus/mobile-pipeline/pipeline"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the resolved build config",
	Long:  `Validates the build config, merges the inputs over it and prints the result with secrets redacted.`,
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().String("format", "yaml", "output format (yaml, json)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, _ []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequirePlatform(); err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")

	resolved, err := pipeline.Resolve(*cfg.ActionInputs())
	if err != nil {
		return err
	}
	resolved.Credentials = resolved.Credentials.Redacted()

	out := cmd.OutOrStdout()
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(resolved); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resolved)
	default:
		return fmt.Errorf("invalid format %q (must be yaml or json)", format)
	}
}
