//go:build gcp

package cache

import (
	"context"

	appconfig "github.com/ptrus/mobile-pipeline/config"
)

func newGCSBackend(ctx context.Context, cfg appconfig.CacheConfig) (Backend, error) {
	return NewGCSBackend(ctx, GCSConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
}
