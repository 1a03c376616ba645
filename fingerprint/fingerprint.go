// Package fingerprint wraps the external native fingerprint tool and routes builds between
// native and OTA using a cache keyed by (platform, hash).
package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ptrus/mobile-pipeline/cache"
	"github.com/ptrus/mobile-pipeline/models"
	"github.com/ptrus/mobile-pipeline/runner"
)

// DefaultCommand generates a fingerprint for one platform; "--platform <p>" is appended.
var DefaultCommand = []string{"npx", "expo-updates", "fingerprint:generate"}

// Engine computes fingerprints and tracks which ones already had a native build.
type Engine struct {
	runner     runner.Runner
	store      cache.Store
	logger     *slog.Logger
	command    []string
	projectDir string
	markerDir  string
	now        func() time.Time
}

// Config configures an Engine.
type Config struct {
	// Command overrides DefaultCommand.
	Command []string
	// ProjectDir is the project root; the cache store must be rooted here.
	ProjectDir string
	// MarkerDir is where marker files are written, relative to ProjectDir.
	MarkerDir string
}

// Decision is the outcome of the routing decision.
type Decision struct {
	Mode models.BuildMode `json:"mode"`
	// Hash is empty when no fingerprint was computed.
	Hash string `json:"hash"`
	// SourceCount is informational.
	SourceCount int `json:"sourceCount"`
}

// New creates a new fingerprint engine.
func New(cfg Config, r runner.Runner, store cache.Store, logger *slog.Logger) *Engine {
	command := cfg.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &Engine{
		runner:     r,
		store:      store,
		logger:     logger,
		command:    command,
		projectDir: cfg.ProjectDir,
		markerDir:  cfg.MarkerDir,
		now:        time.Now,
	}
}

// CacheKey returns the cache key recording a native build for hash.
func CacheKey(platform models.Platform, hash string) string {
	return fmt.Sprintf("native-build-%s-%s", platform, hash)
}

// MarkerPath returns the marker file path relative to the project directory.
func (e *Engine) MarkerPath(platform models.Platform) string {
	return filepath.Join(e.markerDir, fmt.Sprintf("fingerprint-%s.json", platform))
}

type toolOutput struct {
	Hash    any   `json:"hash"`
	Sources []any `json:"sources"`
}

// Compute runs the fingerprint tool for platform in projectDir. A tool failure is returned
// as the runner reported it.
func (e *Engine) Compute(ctx context.Context, platform models.Platform, projectDir string) (models.FingerprintResult, error) {
	args := append(append([]string(nil), e.command[1:]...), "--platform", string(platform))
	res, err := e.runner.Run(ctx, e.command[0], args, runner.Options{Dir: projectDir})
	if err != nil {
		return models.FingerprintResult{}, err
	}

	var out toolOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return models.FingerprintResult{}, newParseError(res.Stdout, err)
	}
	hash, ok := out.Hash.(string)
	if !ok {
		return models.FingerprintResult{}, &FieldError{Field: "hash"}
	}

	return models.FingerprintResult{Hash: hash, SourceCount: len(out.Sources)}, nil
}

// Restore reports whether a native build was already recorded for hash.
// Cache failures count as a miss.
func (e *Engine) Restore(ctx context.Context, platform models.Platform, hash string) bool {
	key := CacheKey(platform, hash)
	matched, err := e.store.Restore(ctx, []string{e.MarkerPath(platform)}, key)
	if err != nil {
		e.logger.Warn("fingerprint cache restore failed, assuming native changes", "key", key, "err", err)
		return false
	}
	if matched == "" {
		e.logger.Info("fingerprint cache miss", "platform", platform, "hash", hash)
		return false
	}
	e.logger.Info("fingerprint cache hit", "platform", platform, "hash", hash)
	return true
}

// Save writes the marker file and records hash in the cache. Failures are logged.
func (e *Engine) Save(ctx context.Context, platform models.Platform, hash string) {
	marker := models.FingerprintMarker{
		Hash:      hash,
		Timestamp: e.now().UTC(),
		Platform:  platform,
	}
	if err := e.writeMarker(marker); err != nil {
		e.logger.Warn("failed to write fingerprint marker", "platform", platform, "err", err)
		return
	}

	key := CacheKey(platform, hash)
	err := e.store.Save(ctx, []string{e.MarkerPath(platform)}, key)
	switch {
	case err == nil:
		e.logger.Info("fingerprint cache saved", "key", key)
	case errors.Is(err, cache.ErrKeyExists):
		e.logger.Info("fingerprint cache entry already exists", "key", key)
	default:
		e.logger.Warn("failed to save fingerprint cache", "key", key, "err", err)
	}
}

func (e *Engine) writeMarker(marker models.FingerprintMarker) error {
	path := filepath.Join(e.projectDir, e.MarkerPath(marker.Platform))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Decide picks the build mode.
//
// With fingerprinting enabled and no explicit OTA request, a cached fingerprint routes to OTA
// and a miss to a native build. Otherwise the OTA flag decides, and a native build without
// fingerprinting is reported as full.
func (e *Engine) Decide(ctx context.Context, platform models.Platform, projectDir string, fingerprintEnabled, otaRequested bool) (Decision, error) {
	if !fingerprintEnabled || otaRequested {
		if otaRequested {
			return Decision{Mode: models.BuildModeOTA}, nil
		}
		return Decision{Mode: models.BuildModeFull}, nil
	}

	result, err := e.Compute(ctx, platform, projectDir)
	if err != nil {
		return Decision{}, err
	}
	e.logger.Info("fingerprint computed", "platform", platform, "hash", result.Hash, "sources", result.SourceCount)

	d := Decision{Mode: models.BuildModeNative, Hash: result.Hash, SourceCount: result.SourceCount}
	if e.Restore(ctx, platform, result.Hash) {
		d.Mode = models.BuildModeOTA
	}
	return d, nil
}
