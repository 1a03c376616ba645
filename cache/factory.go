package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	appconfig "github.com/ptrus/mobile-pipeline/config"
	"github.com/ptrus/mobile-pipeline/db"
)

// NewStore creates the Store selected by cfg, rooted at the workspace directory root.
// The local backend requires database.
func NewStore(ctx context.Context, cfg appconfig.CacheConfig, root string, database *db.DB, logger *slog.Logger) (Store, error) {
	backend, err := NewBackend(ctx, cfg, database)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return Noop{}, nil
	}
	logger.Debug("cache store configured", "backend", cfg.Backend)
	return NewArchive(backend, root, logger), nil
}

// NewBackend creates the Backend selected by cfg. It returns nil for the none backend.
func NewBackend(ctx context.Context, cfg appconfig.CacheConfig, database *db.DB) (Backend, error) {
	switch cfg.Backend {
	case appconfig.CacheBackendNone:
		return nil, nil
	case appconfig.CacheBackendLocal, "":
		if database == nil {
			return nil, fmt.Errorf("local cache backend requires a database")
		}
		return NewLocalBackend(cfg.Dir, database)
	case appconfig.CacheBackendHTTP:
		return NewHTTPBackend(cfg.URL, cfg.Token), nil
	case appconfig.CacheBackendS3:
		return NewS3Backend(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case appconfig.CacheBackendGCS:
		return newGCSBackend(ctx, cfg)
	case appconfig.CacheBackendRedis:
		return NewRedisBackend(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

func trimObjectKey(name, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".tar.gz")
}
