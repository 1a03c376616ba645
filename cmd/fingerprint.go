package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ptrus/mobile-pipeline/cache"
	"github.com/ptrus/mobile-pipeline/fingerprint"
	"github.com/ptrus/mobile-pipeline/models"
	"github.com/ptrus/mobile-pipeline/pipeline"
	"github.com/ptrus/mobile-pipeline/runner"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Decide between a native build and an OTA update",
	Long: `Computes the native fingerprint and looks it up in the cache store. A hit means the
native binary is unchanged and an OTA update is enough.

With --save, records the current fingerprint as natively built. Use it after a native build
that ran outside this tool.`,
	RunE: runFingerprint,
}

func init() {
	fingerprintCmd.Flags().Bool("save", false, "record the current fingerprint as natively built")
	fingerprintCmd.Flags().Bool("ota", false, "force an OTA update")
	rootCmd.AddCommand(fingerprintCmd)
}

func runFingerprint(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequirePlatform(); err != nil {
		return err
	}
	save, _ := cmd.Flags().GetBool("save")
	ctx := cmd.Context()

	database, err := openDB(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	store, err := cache.NewStore(ctx, cfg.CacheStore, cfg.ProjectDir, database, logger)
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}

	platform := models.Platform(cfg.Platform)
	engine := fingerprint.New(fingerprint.Config{
		Command:    strings.Fields(cfg.FingerprintCommand),
		ProjectDir: cfg.ProjectDir,
		MarkerDir:  cfg.MarkerDir,
	}, runner.New(logger), store, logger)

	if save {
		result, err := engine.Compute(ctx, platform, cfg.ProjectDir)
		if err != nil {
			return err
		}
		engine.Save(ctx, platform, result.Hash)
		fmt.Fprintln(cmd.OutOrStdout(), result.Hash)
		return nil
	}

	decision, err := engine.Decide(ctx, platform, cfg.ProjectDir, true, cfg.OTA)
	if err != nil {
		return errors.New(pipeline.FailureMessage(err))
	}

	if err := pipeline.WriteOutputs(cfg.OutputsFile, []pipeline.Output{
		{Name: pipeline.OutputFingerprintHash, Value: decision.Hash},
		{Name: pipeline.OutputBuildMode, Value: string(decision.Mode)},
	}, logger); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(decision)
}
