package toolchain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ptrus/mobile-pipeline/models"
)

// iosOutputDir is where gym writes the exported archive, relative to the project.
const iosOutputDir = "build"

// matchTypes maps export methods to fastlane match certificate types.
var matchTypes = map[string]string{
	"app-store":   "appstore",
	"ad-hoc":      "adhoc",
	"development": "development",
	"enterprise":  "enterprise",
}

// Build runs the native build for the resolved platform and returns the artifact path.
func (t *Toolchain) Build(ctx context.Context, cfg *models.ResolvedConfig, env map[string]string) (string, error) {
	switch cfg.Platform {
	case models.PlatformIOS:
		if cfg.IOS == nil {
			return "", errors.New("missing ios build settings")
		}
		if err := t.syncSigning(ctx, cfg, env); err != nil {
			return "", err
		}
		if err := t.buildIOS(ctx, cfg.IOS, env); err != nil {
			return "", err
		}
		return FindArtifact(t.projectDir, cfg)
	case models.PlatformAndroid:
		if cfg.Android == nil {
			return "", errors.New("missing android build settings")
		}
		if err := t.buildAndroid(ctx, cfg.Android, env); err != nil {
			return "", err
		}
		return FindArtifact(t.projectDir, cfg)
	default:
		return "", fmt.Errorf("invalid platform %q", cfg.Platform)
	}
}

// syncSigning fetches certificates with fastlane match when the profile uses match signing.
func (t *Toolchain) syncSigning(ctx context.Context, cfg *models.ResolvedConfig, env map[string]string) error {
	if cfg.Signing == nil || cfg.Signing.IOS == nil || cfg.Signing.IOS.Method != "match" {
		return nil
	}
	m := cfg.Signing.IOS.Match
	if m == nil {
		m = &models.MatchConfig{}
	}

	matchType := m.Type
	if matchType == "" {
		matchType = matchTypes[cfg.IOS.ExportMethod]
	}
	args := []string{"match", matchType}
	if m.Storage != "" {
		args = append(args, "--storage_mode", m.Storage)
	}
	if m.GitURL != "" {
		args = append(args, "--git_url", m.GitURL)
	}
	// Concurrent jobs share the match repository; only write when explicitly allowed.
	readonly := m.Readonly == nil || *m.Readonly
	args = append(args, "--readonly", fmt.Sprint(readonly))
	if keychain := env[EnvMatchKeychainName]; keychain != "" {
		args = append(args, "--keychain_name", keychain)
	}
	if cfg.Submit != nil && cfg.Submit.IOS != nil && cfg.Submit.IOS.TeamID != "" {
		args = append(args, "--team_id", cfg.Submit.IOS.TeamID)
	}

	if _, err := t.run(ctx, t.projectDir, "fastlane", args, env); err != nil {
		return fmt.Errorf("failed to sync signing certificates: %w", err)
	}
	return nil
}

func (t *Toolchain) buildIOS(ctx context.Context, ios *models.IOSBuildConfig, env map[string]string) error {
	args := []string{
		"gym",
		"--configuration", ios.BuildConfiguration,
		"--export_method", ios.ExportMethod,
		"--output_directory", filepath.Join("..", iosOutputDir),
		"--clean",
	}
	if ios.Scheme != "" {
		args = append(args, "--scheme", ios.Scheme, "--output_name", ios.Scheme+".ipa")
	}
	if _, err := t.run(ctx, filepath.Join(t.projectDir, "ios"), "fastlane", args, env); err != nil {
		return fmt.Errorf("failed to build ios app: %w", err)
	}
	return nil
}

// gradleSigningPrefix passes the injected signing properties to Gradle through the
// environment, keeping the passwords off the command line.
const gradleSigningPrefix = "ORG_GRADLE_PROJECT_android.injected.signing."

// GradleTask returns the Gradle task producing the requested artifact, e.g. bundleRelease.
func GradleTask(android *models.AndroidBuildConfig) string {
	prefix := "assemble"
	if android.AAB != nil && *android.AAB {
		prefix = "bundle"
	}
	buildType := android.BuildType
	if buildType == "" {
		return prefix
	}
	return prefix + strings.ToUpper(buildType[:1]) + buildType[1:]
}

func (t *Toolchain) buildAndroid(ctx context.Context, android *models.AndroidBuildConfig, env map[string]string) error {
	args := []string{GradleTask(android), "--no-daemon"}
	if store := env[EnvKeystorePath]; store != "" {
		env = mergeMaps(env, map[string]string{
			gradleSigningPrefix + "store.file":     store,
			gradleSigningPrefix + "store.password": env[EnvKeystorePassword],
			gradleSigningPrefix + "key.alias":      env[EnvKeyAlias],
			gradleSigningPrefix + "key.password":   env[EnvKeyPassword],
		})
	}
	if _, err := t.run(ctx, filepath.Join(t.projectDir, "android"), "./gradlew", args, env); err != nil {
		return fmt.Errorf("failed to build android app: %w", err)
	}
	return nil
}
