package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ptrus/mobile-pipeline/cache"
	"github.com/ptrus/mobile-pipeline/models"
)

// dependencyCache is a dependency directory cached under a lockfile-derived key.
type dependencyCache struct {
	Name        string
	Paths       []string
	Key         string
	RestoreKeys []string
}

var nodeLockfiles = []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "bun.lockb"}

// dependencyCaches returns the caches applicable to the project. A cache whose lockfile is
// missing is skipped.
func dependencyCaches(projectDir string, platform models.Platform, logger *slog.Logger) []dependencyCache {
	var out []dependencyCache
	add := func(name string, paths []string, lockfiles ...string) {
		hash, err := hashFiles(projectDir, lockfiles)
		if err != nil {
			logger.Warn("failed to hash lockfiles", "cache", name, "err", err)
			return
		}
		if hash == "" {
			logger.Debug("no lockfile, skipping dependency cache", "cache", name)
			return
		}
		prefix := name + "-" + runtime.GOOS + "-"
		out = append(out, dependencyCache{
			Name:        name,
			Paths:       paths,
			Key:         prefix + hash,
			RestoreKeys: []string{prefix},
		})
	}

	for _, lock := range nodeLockfiles {
		if _, err := os.Stat(filepath.Join(projectDir, lock)); err == nil {
			add("node-modules", []string{"node_modules"}, lock)
			break
		}
	}
	switch platform {
	case models.PlatformIOS:
		add("cocoapods", []string{filepath.Join("ios", "Pods")}, filepath.Join("ios", "Podfile.lock"))
	case models.PlatformAndroid:
		add("gradle", []string{filepath.Join("android", ".gradle")},
			filepath.Join("android", "build.gradle"),
			filepath.Join("android", "app", "build.gradle"),
			filepath.Join("android", "gradle", "wrapper", "gradle-wrapper.properties"))
	}
	return out
}

// hashFiles returns a short content hash over the existing files, or "" when none exist.
func hashFiles(root string, files []string) (string, error) {
	h := sha256.New()
	found := false
	for _, name := range files {
		f, err := os.Open(filepath.Join(root, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, _ = io.WriteString(h, name+"\x00")
		_, err = io.Copy(h, f)
		_ = f.Close()
		if err != nil {
			return "", err
		}
		found = true
	}
	if !found {
		return "", nil
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// restoreCaches restores every cache concurrently. Failures are logged and never stop the build.
// It returns the caches that hit their exact key.
func (p *Pipeline) restoreCaches(ctx context.Context, caches []dependencyCache) map[string]bool {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		hits = make(map[string]bool)
	)
	for _, c := range caches {
		g.Go(func() error {
			matched, err := p.store.Restore(ctx, c.Paths, c.Key, c.RestoreKeys...)
			switch {
			case err != nil:
				p.logger.Warn("cache restore failed", "cache", c.Name, "key", c.Key, "err", err)
			case matched == "":
				p.logger.Info("cache miss", "cache", c.Name, "key", c.Key)
			default:
				p.logger.Info("cache restored", "cache", c.Name, "key", matched)
				if matched == c.Key {
					mu.Lock()
					hits[c.Name] = true
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return hits
}

// saveCaches saves every cache that missed its exact key, concurrently and best-effort.
func (p *Pipeline) saveCaches(ctx context.Context, caches []dependencyCache, hits map[string]bool) {
	var g errgroup.Group
	for _, c := range caches {
		if hits[c.Name] {
			continue
		}
		g.Go(func() error {
			err := p.store.Save(ctx, c.Paths, c.Key)
			switch {
			case err == nil:
				p.logger.Info("cache saved", "cache", c.Name, "key", c.Key)
			case errors.Is(err, cache.ErrKeyExists):
				p.logger.Info("cache entry already exists", "cache", c.Name, "key", c.Key)
			default:
				p.logger.Warn("cache save failed", "cache", c.Name, "key", c.Key, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
