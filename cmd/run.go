package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ptrus/mobile-pipeline/cache"
	"github.com/ptrus/mobile-pipeline/pipeline"
	"github.com/ptrus/mobile-pipeline/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full build pipeline",
	Long: `Resolves the build config, installs credentials, restores caches, decides between a
native build and an OTA update from the native fingerprint, then builds, submits and
writes the build-number, fingerprint-hash and build-mode outputs.`,
	RunE: runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.Bool("submit", false, "submit the artifact to the store")
	f.Bool("ota", false, "publish an OTA update instead of building")
	f.Bool("version-bump", false, "increment the build number before a native build (overrides version.autoIncrement)")
	f.Bool("cache", true, "restore and save dependency caches")
	f.Bool("fingerprint", true, "route between native and OTA builds by native fingerprint")
	f.Bool("skip-prebuild", false, "skip expo prebuild")
	f.Bool("prebuild-clean", false, "pass --clean to expo prebuild")
	f.String("scheme", "", "iOS scheme")
	f.String("build-configuration", "", "iOS build configuration (Debug, Release)")
	f.String("export-method", "", "iOS export method")
	f.String("build-type", "", "Android build type (debug, release)")
	f.String("aab", "", "build an Android app bundle (true, false)")
	f.String("version-strategy", "", "version bump strategy")
	f.String("git-tag-pattern", "", "tag pattern for the git-tag strategy")
	f.String("ota-channel", "", "OTA update channel")
	f.String("ota-message", "", "OTA update message")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequirePlatform(); err != nil {
		return err
	}

	ctx := cmd.Context()

	// Run history is optional; a broken database never fails the build.
	database, err := openDB(cfg.DB.Path)
	if err != nil {
		logger.Warn("run history disabled", "error", err)
		database = nil
	} else {
		defer func() {
			_ = database.Close()
		}()
	}

	// So is the cache store.
	store, err := cache.NewStore(ctx, cfg.CacheStore, cfg.ProjectDir, database, logger)
	if err != nil {
		logger.Warn("cache store unavailable, caching disabled", "backend", cfg.CacheStore.Backend, "error", err)
		store = cache.Noop{}
	}

	p := pipeline.New(*cfg.ActionInputs(), pipeline.Settings{
		MarkerDir:          cfg.MarkerDir,
		FingerprintCommand: strings.Fields(cfg.FingerprintCommand),
	}, runner.New(logger), store, database, logger)

	summary, err := p.Run(ctx)
	if err != nil {
		return errors.New(pipeline.FailureMessage(err))
	}
	if summary.RunID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s build finished\n", summary.RunID, summary.Mode)
	}
	return nil
}
