package bump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/ptrus/mobile-pipeline/buildconfig"
	"github.com/ptrus/mobile-pipeline/models"
	"github.com/ptrus/mobile-pipeline/runner"
)

// Computed is the build identifier produced by a strategy.
type Computed struct {
	Previous int64
	New      int64
	// Version is set by strategies that derive a semantic version.
	Version string
}

// Request is the input to a strategy.
type Request struct {
	Platform   models.Platform
	ProjectDir string
	// AppConfig is the current app config, or nil when there is none.
	AppConfig *AppConfig
}

// Strategy computes the next build identifier.
type Strategy interface {
	Name() string
	Compute(ctx context.Context, req Request) (Computed, error)
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string, r runner.Runner, gitTagPattern string, now func() time.Time, logger *slog.Logger) (Strategy, error) {
	switch name {
	case buildconfig.StrategyAppJSON, "":
		return appJSONStrategy{}, nil
	case buildconfig.StrategyGitTag:
		if gitTagPattern == "" {
			gitTagPattern = buildconfig.DefaultGitTagPattern
		}
		return gitTagStrategy{runner: r, pattern: gitTagPattern, logger: logger}, nil
	case buildconfig.StrategyGitCommitCount:
		return commitCountStrategy{runner: r}, nil
	case buildconfig.StrategyTimestamp:
		return timestampStrategy{now: now}, nil
	default:
		return nil, fmt.Errorf("unknown version strategy %q (available: %s)", name, strings.Join(buildconfig.Strategies, ", "))
	}
}

type appJSONStrategy struct{}

func (appJSONStrategy) Name() string { return buildconfig.StrategyAppJSON }

func (appJSONStrategy) Compute(_ context.Context, req Request) (Computed, error) {
	if req.AppConfig == nil {
		return Computed{}, errors.New("the app-json version strategy requires an app config file to store the build number")
	}
	prev, err := req.AppConfig.BuildNumber(req.Platform)
	if err != nil {
		return Computed{}, err
	}
	return Computed{Previous: prev, New: prev + 1}, nil
}

type gitTagStrategy struct {
	runner  runner.Runner
	pattern string
	logger  *slog.Logger
}

func (gitTagStrategy) Name() string { return buildconfig.StrategyGitTag }

func (s gitTagStrategy) Compute(ctx context.Context, req Request) (Computed, error) {
	prev := semver.New(0, 0, 0, "", "")

	res, err := s.runner.Run(ctx, "git", []string{"describe", "--tags", "--abbrev=0", "--match=" + s.pattern}, runner.Options{Dir: req.ProjectDir})
	var exitErr *runner.ExitError
	switch {
	case errors.As(err, &exitErr):
		s.logger.Info("no git tag found, starting at 1.0.0", "pattern", s.pattern)
	case err != nil:
		return Computed{}, err
	default:
		tag := strings.TrimSpace(res.Stdout)
		if v := ParseVersionFromTag(tag); v != nil {
			prev = v
		} else {
			s.logger.Warn("git tag has no major.minor.patch version, starting at 1.0.0", "tag", tag)
		}
	}

	next := NextVersion(prev)
	n, err := EncodeBuildNumber(next)
	if err != nil {
		return Computed{}, err
	}
	p, err := EncodeBuildNumber(prev)
	if err != nil {
		p = 0
	}
	return Computed{Previous: p, New: n, Version: next.String()}, nil
}

type commitCountStrategy struct {
	runner runner.Runner
}

func (commitCountStrategy) Name() string { return buildconfig.StrategyGitCommitCount }

func (s commitCountStrategy) Compute(ctx context.Context, req Request) (Computed, error) {
	res, err := s.runner.Run(ctx, "git", []string{"rev-list", "--count", "HEAD"}, runner.Options{Dir: req.ProjectDir})
	if err != nil {
		return Computed{}, err
	}
	raw := strings.TrimSpace(res.Stdout)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return Computed{}, &ToolOutputError{Command: "git rev-list --count HEAD", Output: res.Stdout}
	}

	var prev int64
	if req.AppConfig != nil {
		if v, err := req.AppConfig.BuildNumber(req.Platform); err == nil {
			prev = v
		}
	}
	return Computed{Previous: prev, New: n}, nil
}

type timestampStrategy struct {
	now func() time.Time
}

func (timestampStrategy) Name() string { return buildconfig.StrategyTimestamp }

func (s timestampStrategy) Compute(context.Context, Request) (Computed, error) {
	return Computed{New: GenerateTimestamp(s.now())}, nil
}
