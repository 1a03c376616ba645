package cmd

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ptrus/mobile-pipeline/bump"
	"github.com/ptrus/mobile-pipeline/pipeline"
	"github.com/ptrus/mobile-pipeline/runner"
)

var bumpCmd = &cobra.Command{
	Use:   "bump",
	Short: "Increment the build number",
	Long: `Computes the next build number with the configured strategy, writes it to the app
config and mirrors it into the native projects when they exist.`,
	RunE: runBump,
}

func init() {
	bumpCmd.Flags().String("version-strategy", "", "version bump strategy (app-json, git-tag, git-commit-count, timestamp)")
	bumpCmd.Flags().String("git-tag-pattern", "", "tag pattern for the git-tag strategy")
	rootCmd.AddCommand(bumpCmd)
}

func runBump(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequirePlatform(); err != nil {
		return err
	}

	resolved, err := pipeline.Resolve(*cfg.ActionInputs())
	if err != nil {
		return err
	}

	res, err := bump.New(runner.New(logger), logger).Bump(cmd.Context(), bump.Options{
		Platform:      resolved.Platform,
		ProjectDir:    resolved.ProjectDir,
		AppConfig:     resolved.Version.Source,
		Strategy:      resolved.Version.Strategy,
		GitTagPattern: resolved.Version.GitTagPattern,
	})
	if err != nil {
		return errors.New(pipeline.FailureMessage(err))
	}

	if err := pipeline.WriteOutputs(cfg.OutputsFile, []pipeline.Output{
		{Name: pipeline.OutputBuildNumber, Value: strconv.FormatInt(res.NewValue, 10)},
	}, logger); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res.BumpResult)
}
