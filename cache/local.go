package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ptrus/mobile-pipeline/db"
)

// LocalBackend keeps archives in a directory and indexes them in the run database.
type LocalBackend struct {
	dir string
	db  *db.DB
}

// NewLocalBackend creates a local backend storing archives under dir.
func NewLocalBackend(dir string, database *db.DB) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &LocalBackend{dir: dir, db: database}, nil
}

// Get implements Backend.
func (b *LocalBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	entry, err := b.db.GetCacheEntry(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	f, err := os.Open(entry.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return f, nil
}

// Put implements Backend.
func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	if _, err := b.db.GetCacheEntry(ctx, key); err == nil {
		return ErrKeyExists
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	sum := sha256.Sum256([]byte(key))
	path := filepath.Join(b.dir, hex.EncodeToString(sum[:])+".tar.gz")

	tmp, err := os.CreateTemp(b.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store archive: %w", err)
	}

	if err := b.db.InsertCacheEntry(ctx, key, path, size); err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return ErrKeyExists
		}
		return err
	}
	return nil
}

// Latest implements Backend.
func (b *LocalBackend) Latest(ctx context.Context, prefix string) (string, error) {
	entry, err := b.db.FindCacheEntryByPrefix(ctx, prefix)
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return entry.Key, nil
}
