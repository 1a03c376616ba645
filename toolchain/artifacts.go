package toolchain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ptrus/mobile-pipeline/models"
)

// ArtifactNotFoundError is returned when a build finished without producing an artifact.
type ArtifactNotFoundError struct {
	Ext    string
	Search []string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("no %s artifact found in %s", e.Ext, strings.Join(e.Search, ", "))
}

// FindArtifact returns the newest build artifact for the resolved platform.
func FindArtifact(projectDir string, cfg *models.ResolvedConfig) (string, error) {
	var ext string
	var dirs []string
	switch {
	case cfg.IOS != nil:
		ext = ".ipa"
		dirs = []string{
			filepath.Join(projectDir, iosOutputDir),
			filepath.Join(projectDir, "ios", "build"),
		}
	case cfg.Android != nil:
		kind := "apk"
		ext = ".apk"
		if cfg.Android.AAB != nil && *cfg.Android.AAB {
			kind, ext = "bundle", ".aab"
		}
		dirs = []string{
			filepath.Join(projectDir, "android", "app", "build", "outputs", kind, cfg.Android.BuildType),
			filepath.Join(projectDir, "android", "app", "build", "outputs", kind),
		}
	default:
		return "", errors.New("no platform build settings")
	}

	for _, dir := range dirs {
		path, err := newestWithExt(dir, ext)
		if err != nil {
			return "", err
		}
		if path != "" {
			return path, nil
		}
	}
	return "", &ArtifactNotFoundError{Ext: ext, Search: dirs}
}

func newestWithExt(root, ext string) (string, error) {
	var (
		best   string
		bestAt time.Time
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ext {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if best == "" || info.ModTime().After(bestAt) {
			best, bestAt = path, info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to search %s: %w", root, err)
	}
	return best, nil
}
