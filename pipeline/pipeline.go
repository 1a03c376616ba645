// Package pipeline runs a complete mobile build: config resolution, credentials, caches,
// the native-or-OTA decision, the build itself and the CI outputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/ptrus/mobile-pipeline/buildconfig"
	"github.com/ptrus/mobile-pipeline/bump"
	"github.com/ptrus/mobile-pipeline/cache"
	"github.com/ptrus/mobile-pipeline/db"
	"github.com/ptrus/mobile-pipeline/fingerprint"
	"github.com/ptrus/mobile-pipeline/models"
	"github.com/ptrus/mobile-pipeline/runner"
	"github.com/ptrus/mobile-pipeline/toolchain"
)

// Settings holds pipeline settings that are not per-build inputs.
type Settings struct {
	// MarkerDir holds fingerprint marker files, relative to the project directory.
	MarkerDir string
	// FingerprintCommand overrides the fingerprint tool invocation.
	FingerprintCommand []string
}

// Pipeline runs one build.
type Pipeline struct {
	inputs      models.ActionInputs
	db          *db.DB
	logger      *slog.Logger
	store       cache.Store
	fingerprint *fingerprint.Engine
	bump        *bump.Engine
	tools       *toolchain.Toolchain
}

// Summary is the result of a successful run.
type Summary struct {
	RunID           string
	Mode            models.BuildMode
	FingerprintHash string
	BuildNumber     string
	Artifact        string
}

// New creates a pipeline. database may be nil, in which case no run history is recorded.
func New(inputs models.ActionInputs, settings Settings, r runner.Runner, store cache.Store, database *db.DB, logger *slog.Logger) *Pipeline {
	if inputs.ProjectDir == "" {
		inputs.ProjectDir = "."
	}
	logger = logger.With("platform", inputs.Platform)
	return &Pipeline{
		inputs: inputs,
		db:     database,
		logger: logger,
		store:  store,
		fingerprint: fingerprint.New(fingerprint.Config{
			Command:    settings.FingerprintCommand,
			ProjectDir: inputs.ProjectDir,
			MarkerDir:  settings.MarkerDir,
		}, r, store, logger),
		bump:  bump.New(r, logger),
		tools: toolchain.New(r, inputs.ProjectDir, logger),
	}
}

// Run executes the pipeline. It is the only place where step errors become a failed build.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	run := p.startRun(ctx)
	if run != nil {
		summary.RunID = run.ID
	}

	err := p.execute(ctx, summary)

	p.finishRun(ctx, run, summary, err)
	if err != nil {
		p.logger.Error("pipeline failed", "err", err)
		return summary, err
	}

	p.logger.Info("pipeline completed",
		"mode", summary.Mode,
		"build_number", summary.BuildNumber,
		"fingerprint", summary.FingerprintHash,
		"artifact", summary.Artifact)
	return summary, nil
}

func (p *Pipeline) execute(ctx context.Context, summary *Summary) error {
	cfg, err := p.Resolve()
	if err != nil {
		return err
	}
	p.logger.Info("config resolved", "profile", cfg.Profile)

	p.tools.CheckVersions(ctx, toolchain.ToolVersions{
		Node:     p.inputs.NodeVersion,
		Ruby:     p.inputs.RubyVersion,
		Fastlane: p.inputs.FastlaneVersion,
	})

	creds, err := p.tools.InstallCredentials(ctx, cfg.Platform, cfg.Credentials)
	if err != nil {
		return fmt.Errorf("failed to install credentials: %w", err)
	}
	defer p.tools.RemoveCredentials(context.WithoutCancel(ctx), creds)

	var depCaches []dependencyCache
	var hits map[string]bool
	if p.inputs.Cache {
		depCaches = dependencyCaches(p.inputs.ProjectDir, cfg.Platform, p.logger)
		hits = p.restoreCaches(ctx, depCaches)
	}

	decision, err := p.fingerprint.Decide(ctx, cfg.Platform, p.inputs.ProjectDir, p.inputs.Fingerprint, p.inputs.OTA)
	if err != nil {
		return err
	}
	summary.Mode = decision.Mode
	summary.FingerprintHash = decision.Hash
	p.logger.Info("build mode selected", "mode", decision.Mode, "hash", decision.Hash)

	if decision.Mode == models.BuildModeOTA {
		if err := p.tools.PublishOTA(ctx, cfg, p.inputs.OTAMessage, creds.Env); err != nil {
			return err
		}
	} else {
		p.checkHistory(ctx, cfg.Platform, decision.Hash)
		if err := p.native(ctx, cfg, creds.Env, decision, summary); err != nil {
			return err
		}
	}

	if p.inputs.Cache {
		p.saveCaches(ctx, depCaches, hits)
	}

	return WriteOutputs(p.inputs.OutputsFile, []Output{
		{Name: OutputBuildNumber, Value: summary.BuildNumber},
		{Name: OutputFingerprintHash, Value: summary.FingerprintHash},
		{Name: OutputBuildMode, Value: string(summary.Mode)},
	}, p.logger)
}

// Resolve parses the build config file and merges the action inputs over it.
func (p *Pipeline) Resolve() (*models.ResolvedConfig, error) {
	return Resolve(p.inputs)
}

// Resolve parses the build config file named by inputs and merges inputs over it.
// A missing config file resolves from defaults.
func Resolve(inputs models.ActionInputs) (*models.ResolvedConfig, error) {
	if inputs.ProjectDir == "" {
		inputs.ProjectDir = "."
	}
	path := inputs.ConfigPath
	if path == "" {
		path = buildconfig.DefaultConfigFile
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(inputs.ProjectDir, path)
	}
	fileCfg, err := buildconfig.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return buildconfig.MergeActionInputs(fileCfg, &inputs)
}

func (p *Pipeline) native(ctx context.Context, cfg *models.ResolvedConfig, env map[string]string, decision fingerprint.Decision, summary *Summary) error {
	if cfg.Version != nil && cfg.Version.AutoIncrement {
		strategy := p.inputs.VersionStrategy
		if strategy == "" {
			strategy = cfg.Version.Strategy
		}
		pattern := p.inputs.GitTagPattern
		if pattern == "" {
			pattern = cfg.Version.GitTagPattern
		}
		res, err := p.bump.Bump(ctx, bump.Options{
			Platform:      cfg.Platform,
			ProjectDir:    p.inputs.ProjectDir,
			AppConfig:     cfg.Version.Source,
			Strategy:      strategy,
			GitTagPattern: pattern,
		})
		if err != nil {
			return err
		}
		summary.BuildNumber = strconv.FormatInt(res.NewValue, 10)
	}

	if p.inputs.SkipPrebuild {
		p.logger.Info("skipping prebuild")
	} else if err := p.tools.Prebuild(ctx, cfg.Platform, p.inputs.PrebuildClean, env); err != nil {
		return err
	}

	artifact, err := p.tools.Build(ctx, cfg, env)
	if err != nil {
		return err
	}
	summary.Artifact = artifact
	p.logger.Info("native build finished", "artifact", artifact)

	if p.inputs.Submit {
		if err := p.tools.Submit(ctx, cfg, artifact, env); err != nil {
			return err
		}
	}

	if decision.Hash != "" {
		p.fingerprint.Save(ctx, cfg.Platform, decision.Hash)
	}
	return nil
}

// checkHistory notes when a native build repeats a fingerprint that was already built,
// which means the cache entry was evicted or never saved.
func (p *Pipeline) checkHistory(ctx context.Context, platform models.Platform, hash string) {
	if p.db == nil || hash == "" {
		return
	}
	prev, err := p.db.LastNativeBuild(ctx, platform, hash)
	switch {
	case errors.Is(err, db.ErrNotFound):
	case err != nil:
		p.logger.Warn("failed to query run history", "err", err)
	default:
		p.logger.Info("fingerprint was already built natively, cache entry missing", "run_id", prev.ID, "started_at", prev.StartedAt)
	}
}

func (p *Pipeline) startRun(ctx context.Context) *models.Run {
	if p.db == nil {
		return nil
	}
	profile := p.inputs.Profile
	if profile == "" {
		profile = buildconfig.DefaultProfile
	}
	run, err := p.db.CreateRun(ctx, p.inputs.Platform, profile)
	if err != nil {
		p.logger.Warn("failed to record run start", "err", err)
		return nil
	}
	return run
}

func (p *Pipeline) finishRun(ctx context.Context, run *models.Run, summary *Summary, runErr error) {
	if run == nil {
		return
	}
	outcome := db.RunOutcome{
		Mode:            summary.Mode,
		FingerprintHash: summary.FingerprintHash,
		BuildNumber:     summary.BuildNumber,
		Status:          models.RunStatusSucceeded,
	}
	if runErr != nil {
		outcome.Status = models.RunStatusFailed
		outcome.Message = FailureMessage(runErr)
	}
	if err := p.db.FinishRun(context.WithoutCancel(ctx), run.ID, outcome); err != nil {
		p.logger.Warn("failed to record run outcome", "run_id", run.ID, "err", err)
	}
}
