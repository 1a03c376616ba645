package toolchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ptrus/mobile-pipeline/models"
)

// Submit uploads artifact to TestFlight or Google Play.
func (t *Toolchain) Submit(ctx context.Context, cfg *models.ResolvedConfig, artifact string, env map[string]string) error {
	var args []string
	switch cfg.Platform {
	case models.PlatformIOS:
		args = []string{"pilot", "upload", "--ipa", artifact, "--skip_waiting_for_build_processing", "true"}
		if cfg.Submit != nil && cfg.Submit.IOS != nil {
			s := cfg.Submit.IOS
			if s.ASCAppID != "" {
				args = append(args, "--apple_id", s.ASCAppID)
			}
			if s.AppleID != "" {
				args = append(args, "--username", s.AppleID)
			}
			if s.TeamID != "" {
				args = append(args, "--team_id", s.TeamID)
			}
		}
		if path := env[EnvASCKeyPath]; path != "" {
			args = append(args, "--api_key_path", path)
		}
	case models.PlatformAndroid:
		if cfg.Submit == nil || cfg.Submit.Android == nil || cfg.Submit.Android.PackageName == "" {
			return errors.New("submit.android.packageName is required to submit to Google Play")
		}
		s := cfg.Submit.Android
		flag := "--apk"
		if cfg.Android != nil && cfg.Android.AAB != nil && *cfg.Android.AAB {
			flag = "--aab"
		}
		track := s.Track
		if track == "" {
			track = "internal"
		}
		args = []string{"supply", flag, artifact, "--package_name", s.PackageName, "--track", track}
		if s.ReleaseStatus != "" {
			args = append(args, "--release_status", s.ReleaseStatus)
		}
		if path := env[EnvPlayServiceAccount]; path != "" {
			args = append(args, "--json_key", path)
		}
	default:
		return fmt.Errorf("invalid platform %q", cfg.Platform)
	}

	if _, err := t.run(ctx, t.projectDir, "fastlane", args, env); err != nil {
		return fmt.Errorf("failed to submit %s build: %w", cfg.Platform, err)
	}
	t.logger.Info("build submitted", "platform", cfg.Platform, "artifact", artifact)
	return nil
}
