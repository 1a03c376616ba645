// Package bump computes new build numbers and writes them to the app config and native projects.
package bump

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ptrus/mobile-pipeline/models"
	"github.com/ptrus/mobile-pipeline/runner"
)

// ExpoConfigCommand evaluates a dynamic app config and prints the public config as JSON.
var ExpoConfigCommand = []string{"npx", "expo", "config", "--json", "--type", "public"}

// Options configures a single bump.
type Options struct {
	Platform   models.Platform
	ProjectDir string
	// AppConfig is the app config file name, relative to ProjectDir. Defaults to app.json.
	AppConfig     string
	Strategy      string
	GitTagPattern string
}

// Result is the outcome of a bump.
type Result struct {
	models.BumpResult
	Source ConfigSource
	// Native is the outcome of mirroring the build number into the native project.
	Native Outcome
}

// Engine runs version bumps.
type Engine struct {
	runner runner.Runner
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new bump engine.
func New(r runner.Runner, logger *slog.Logger) *Engine {
	return &Engine{runner: r, logger: logger, now: time.Now}
}

// Bump computes the next build number with the selected strategy, writes it to the app config
// when the config is a static file, and mirrors it into the native project.
func (e *Engine) Bump(ctx context.Context, opts Options) (*Result, error) {
	if !opts.Platform.Valid() {
		return nil, fmt.Errorf("invalid platform %q", opts.Platform)
	}

	strategy, err := NewStrategy(opts.Strategy, e.runner, opts.GitTagPattern, e.now, e.logger)
	if err != nil {
		return nil, err
	}

	source := SelectAppConfigSource(opts.ProjectDir, opts.AppConfig)
	doc, err := e.loadAppConfig(ctx, source, opts.ProjectDir)
	if err != nil {
		return nil, err
	}

	computed, err := strategy.Compute(ctx, Request{Platform: opts.Platform, ProjectDir: opts.ProjectDir, AppConfig: doc})
	if err != nil {
		return nil, err
	}

	field := BuildNumberField(opts.Platform)
	res := &Result{
		BumpResult: models.BumpResult{
			PreviousValue: computed.Previous,
			NewValue:      computed.New,
			Field:         field,
			Version:       computed.Version,
		},
		Source: source,
	}

	switch source.Kind {
	case StaticFile:
		if err := doc.SetBuildNumber(opts.Platform, computed.New); err != nil {
			return nil, err
		}
		if computed.Version != "" {
			if err := doc.Set(FieldVersion, computed.Version); err != nil {
				return nil, err
			}
		}
		if err := doc.Save(); err != nil {
			return nil, err
		}
		e.logger.Info("app config updated", "path", source.Path, "field", field, "value", computed.New)
	case ResolvedViaExternalTool:
		e.logger.Warn("dynamic app config cannot be rewritten, set the build number there manually",
			"path", source.Path, "field", field, "value", computed.New)
	default:
		e.logger.Info("no app config found, skipping app config update", "strategy", strategy.Name())
	}

	if opts.Platform == models.PlatformIOS {
		res.Native = PropagateIOS(opts.ProjectDir, computed.New, computed.Version)
	} else {
		res.Native = PropagateAndroid(opts.ProjectDir, computed.New, computed.Version)
	}
	e.logOutcome(opts.Platform, res.Native)

	e.logger.Info("build number bumped",
		"platform", opts.Platform,
		"strategy", strategy.Name(),
		"previous", computed.Previous,
		"build_number", computed.New,
		"version", computed.Version,
	)
	return res, nil
}

func (e *Engine) loadAppConfig(ctx context.Context, source ConfigSource, projectDir string) (*AppConfig, error) {
	switch source.Kind {
	case StaticFile:
		return LoadAppConfig(source.Path)
	case ResolvedViaExternalTool:
		res, err := e.runner.Run(ctx, ExpoConfigCommand[0], ExpoConfigCommand[1:], runner.Options{Dir: projectDir})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve dynamic app config: %w", err)
		}
		var expo map[string]any
		if err := json.Unmarshal([]byte(res.Stdout), &expo); err != nil {
			return nil, &ToolOutputError{Command: "expo config", Output: res.Stdout}
		}
		data, err := json.Marshal(map[string]any{"expo": expo})
		if err != nil {
			return nil, err
		}
		return ParseAppConfig(source.Path, data)
	default:
		return nil, nil
	}
}

func (e *Engine) logOutcome(platform models.Platform, o Outcome) {
	switch o.Status {
	case Applied:
		if o.Reason != "" {
			e.logger.Warn("native project partially updated", "platform", platform, "files", o.Files, "reason", o.Reason)
			return
		}
		e.logger.Info("native project updated", "platform", platform, "files", o.Files)
	case SkippedMissing:
		e.logger.Info("native project not present, skipping", "platform", platform, "reason", o.Reason)
	case Failed:
		e.logger.Warn("failed to update native project", "platform", platform, "reason", o.Reason)
	}
}

