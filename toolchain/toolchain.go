// Package toolchain drives the external mobile build tools: Expo prebuild, fastlane, Gradle
// and the OTA publisher.
package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ptrus/mobile-pipeline/models"
	"github.com/ptrus/mobile-pipeline/runner"
)

// Toolchain runs build steps for one project.
type Toolchain struct {
	runner     runner.Runner
	logger     *slog.Logger
	projectDir string
	homeDir    string
}

// New creates a toolchain for the project at projectDir.
func New(r runner.Runner, projectDir string, logger *slog.Logger) *Toolchain {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &Toolchain{runner: r, logger: logger, projectDir: projectDir, homeDir: home}
}

// baseEnv is merged into every tool invocation.
var baseEnv = map[string]string{
	"CI":                         "1",
	"FASTLANE_SKIP_UPDATE_CHECK": "1",
	"FASTLANE_HIDE_TIMESTAMP":    "1",
	"EXPO_NO_TELEMETRY":          "1",
}

func (t *Toolchain) run(ctx context.Context, dir, name string, args []string, env map[string]string) (*runner.Result, error) {
	opts := runner.Options{Dir: dir, Env: mergeMaps(baseEnv, env), Sensitive: secretValues(env)}
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	t.logger.Info("running", "command", runner.Redact(line, opts.Sensitive), "dir", dir)
	return t.runner.Run(ctx, name, args, opts)
}

// Prebuild generates the native project for platform with Expo prebuild.
func (t *Toolchain) Prebuild(ctx context.Context, platform models.Platform, clean bool, env map[string]string) error {
	args := []string{"expo", "prebuild", "--platform", string(platform), "--no-install"}
	if clean {
		args = append(args, "--clean")
	}
	if _, err := t.run(ctx, t.projectDir, "npx", args, env); err != nil {
		return fmt.Errorf("failed to run prebuild: %w", err)
	}

	if platform == models.PlatformIOS {
		if _, err := t.run(ctx, filepath.Join(t.projectDir, "ios"), "pod", []string{"install"}, env); err != nil {
			return fmt.Errorf("failed to install pods: %w", err)
		}
	}
	return nil
}

// mergeMaps returns a new map with the entries of later maps taking precedence.
func mergeMaps(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

var toolVersionRe = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// ToolVersions are the requested tool versions; empty entries are not checked.
type ToolVersions struct {
	Node     string
	Ruby     string
	Fastlane string
}

// CheckVersions compares installed tool versions with the requested ones and logs mismatches.
// A missing tool or an unparseable version is logged, never fatal.
func (t *Toolchain) CheckVersions(ctx context.Context, want ToolVersions) {
	checks := []struct {
		name string
		args []string
		want string
	}{
		{"node", []string{"--version"}, want.Node},
		{"ruby", []string{"--version"}, want.Ruby},
		{"fastlane", []string{"--version"}, want.Fastlane},
	}
	for _, c := range checks {
		if c.want == "" {
			continue
		}
		if err := t.checkVersion(ctx, c.name, c.args, c.want); err != nil {
			t.logger.Warn("tool version check failed", "tool", c.name, "want", c.want, "err", err)
		}
	}
}

func (t *Toolchain) checkVersion(ctx context.Context, name string, args []string, want string) error {
	constraint, err := semver.NewConstraint(want)
	if err != nil {
		return fmt.Errorf("invalid version constraint: %w", err)
	}
	res, err := t.runner.Run(ctx, name, args, runner.Options{Dir: t.projectDir})
	if err != nil {
		return err
	}
	// fastlane prints a banner before the version line.
	raw := res.Stdout
	if i := strings.LastIndex(raw, name+" "); i >= 0 {
		raw = raw[i:]
	}
	found := toolVersionRe.FindString(raw)
	if found == "" {
		return fmt.Errorf("no version in output %q", strings.TrimSpace(res.Stdout))
	}
	installed, err := semver.NewVersion(found)
	if err != nil {
		return err
	}
	if !constraint.Check(installed) {
		return fmt.Errorf("installed version %s does not satisfy %s", installed, want)
	}
	t.logger.Info("tool version ok", "tool", name, "version", installed.String())
	return nil
}
