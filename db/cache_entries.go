package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ptrus/mobile-pipeline/models"
)

// ErrDuplicateKey is returned when inserting a cache entry whose key already exists.
var ErrDuplicateKey = errors.New("duplicate key")

// InsertCacheEntry records a new cache archive. Keys are immutable.
func (db *DB) InsertCacheEntry(ctx context.Context, key, path string, size int64) error {
	query := `
		INSERT INTO cache_entries (key, path, size, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query, key, path, size, time.Now().UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("cache key %s: %w", key, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	return nil
}

// GetCacheEntry retrieves a cache entry by exact key.
func (db *DB) GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error) {
	query := `
		SELECT key, path, size, created_at
		FROM cache_entries
		WHERE key = ?
	`

	entry := &models.CacheEntry{}
	err := db.QueryRowContext(ctx, query, key).Scan(&entry.Key, &entry.Path, &entry.Size, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return entry, nil
}

// FindCacheEntryByPrefix retrieves the newest cache entry whose key starts with prefix.
func (db *DB) FindCacheEntryByPrefix(ctx context.Context, prefix string) (*models.CacheEntry, error) {
	query := `
		SELECT key, path, size, created_at
		FROM cache_entries
		WHERE substr(key, 1, ?) = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	entry := &models.CacheEntry{}
	err := db.QueryRowContext(ctx, query, len(prefix), prefix).Scan(&entry.Key, &entry.Path, &entry.Size, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cache entry: %w", err)
	}

	return entry, nil
}

// CountCacheEntries returns the number of stored cache entries.
func (db *DB) CountCacheEntries(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
