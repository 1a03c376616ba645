// Package cache provides a content-keyed cache store for build state.
//
// Entries are immutable: saving an existing key fails with ErrKeyExists, which callers treat
// as benign. Eviction is left to the backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

var (
	// ErrNotFound is returned by backends when a key does not exist.
	ErrNotFound = errors.New("cache entry not found")
	// ErrKeyExists is returned when saving a key that is already stored.
	ErrKeyExists = errors.New("cache key already exists")
	// ErrNotConfigured is returned by the no-op store.
	ErrNotConfigured = errors.New("cache store not configured")
	// ErrNothingToSave is returned when none of the saved paths exist.
	ErrNothingToSave = errors.New("no files to cache")
)

// Store restores and saves sets of paths under a key.
type Store interface {
	// Restore extracts the entry for key into the workspace and returns the matched key.
	// When key is absent, each restore key is tried as a prefix, newest entry first.
	// A miss returns "" and a nil error.
	Restore(ctx context.Context, paths []string, key string, restoreKeys ...string) (string, error)
	// Save archives paths under key.
	Save(ctx context.Context, paths []string, key string) error
}

// Backend stores opaque archives by key.
type Backend interface {
	// Get opens the archive stored under key, or returns ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stores an archive under key, or returns ErrKeyExists.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Latest returns the newest key starting with prefix, or ErrNotFound.
	Latest(ctx context.Context, prefix string) (string, error)
}

// Archive is a Store that keeps tar.gz archives of workspace paths in a Backend.
type Archive struct {
	backend Backend
	root    string
	logger  *slog.Logger
}

// NewArchive creates an archive store rooted at the workspace directory root.
func NewArchive(backend Backend, root string, logger *slog.Logger) *Archive {
	return &Archive{backend: backend, root: root, logger: logger}
}

// Restore implements Store.
func (a *Archive) Restore(ctx context.Context, paths []string, key string, restoreKeys ...string) (string, error) {
	matched := key
	rc, err := a.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		rc = nil
		for _, prefix := range restoreKeys {
			k, err := a.backend.Latest(ctx, prefix)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("failed to look up restore key %s: %w", prefix, err)
			}
			r, err := a.backend.Get(ctx, k)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("failed to get cache entry %s: %w", k, err)
			}
			rc, matched = r, k
			break
		}
		if rc == nil {
			return "", nil
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	n, err := extractArchive(rc, a.root, paths)
	if err != nil {
		return "", fmt.Errorf("failed to extract cache entry %s: %w", matched, err)
	}

	a.logger.Debug("cache restored", "key", matched, "files", n)
	return matched, nil
}

// Save implements Store.
func (a *Archive) Save(ctx context.Context, paths []string, key string) error {
	tmp, err := os.CreateTemp("", "cache-*.tar.gz")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := writeArchive(tmp, a.root, paths)
	if err != nil {
		return fmt.Errorf("failed to archive paths: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("key %s: %w", key, ErrNothingToSave)
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("failed to size archive: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}

	if err := a.backend.Put(ctx, key, tmp, size); err != nil {
		return err
	}

	a.logger.Debug("cache saved", "key", key, "files", n, "size", size)
	return nil
}

// Noop is a Store used when caching is disabled. Every restore misses.
type Noop struct{}

// Restore implements Store.
func (Noop) Restore(context.Context, []string, string, ...string) (string, error) {
	return "", nil
}

// Save implements Store.
func (Noop) Save(context.Context, []string, string) error {
	return ErrNotConfigured
}
