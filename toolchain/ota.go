package toolchain

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/ptrus/mobile-pipeline/models"
)

// otaExportDir is where the JS bundle is exported before a non-Expo upload.
const otaExportDir = "dist"

// Environment variables available to custom OTA upload commands.
const (
	EnvOTADir      = "OTA_DIST_DIR"
	EnvOTAChannel  = "OTA_CHANNEL"
	EnvOTAPlatform = "OTA_PLATFORM"
)

// PublishOTA publishes a JS-only update for the resolved platform.
func (t *Toolchain) PublishOTA(ctx context.Context, cfg *models.ResolvedConfig, message string, env map[string]string) error {
	updates := cfg.Updates
	if updates == nil {
		updates = &models.UpdatesConfig{}
	}
	storage := updates.Storage
	if storage == nil || storage.Type == "" || storage.Type == "expo" {
		return t.publishEAS(ctx, cfg.Platform, updates.Channel, message, env)
	}

	if _, err := t.run(ctx, t.projectDir, "npx", []string{"expo", "export", "--platform", string(cfg.Platform), "--output-dir", otaExportDir}, env); err != nil {
		return fmt.Errorf("failed to export update bundle: %w", err)
	}
	dist := filepath.Join(t.projectDir, otaExportDir)

	var name string
	var args []string
	switch storage.Type {
	case "s3":
		name = "aws"
		args = []string{"s3", "sync", dist, "s3://" + path.Join(storage.Bucket, storage.Prefix, updates.Channel, string(cfg.Platform))}
	case "gcs":
		name = "gsutil"
		args = []string{"-m", "rsync", "-r", dist, "gs://" + path.Join(storage.Bucket, storage.Prefix, updates.Channel, string(cfg.Platform))}
	case "custom":
		if len(storage.Command) == 0 {
			return errors.New("updates.storage.command is required for custom update storage")
		}
		name, args = storage.Command[0], storage.Command[1:]
	default:
		return fmt.Errorf("unsupported update storage type %q", storage.Type)
	}

	uploadEnv := mergeMaps(env, map[string]string{
		EnvOTADir:      dist,
		EnvOTAChannel:  updates.Channel,
		EnvOTAPlatform: string(cfg.Platform),
	})
	if _, err := t.run(ctx, t.projectDir, name, args, uploadEnv); err != nil {
		return fmt.Errorf("failed to upload update: %w", err)
	}
	t.logger.Info("update published", "platform", cfg.Platform, "channel", updates.Channel, "storage", storage.Type)
	return nil
}

func (t *Toolchain) publishEAS(ctx context.Context, platform models.Platform, channel, message string, env map[string]string) error {
	if env[EnvExpoToken] == "" {
		t.logger.Warn("no Expo token supplied, relying on an existing EAS login")
	}
	args := []string{"eas-cli", "update", "--platform", string(platform), "--non-interactive"}
	if channel != "" {
		args = append(args, "--channel", channel)
	}
	if message == "" {
		message = "Update published by mobile-pipeline"
	}
	args = append(args, "--message", message)

	if _, err := t.run(ctx, t.projectDir, "npx", args, env); err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}
	t.logger.Info("update published", "platform", platform, "channel", channel, "storage", "expo")
	return nil
}
