//go:build !gcp

package cache

import (
	"context"
	"fmt"

	appconfig "github.com/ptrus/mobile-pipeline/config"
)

func newGCSBackend(context.Context, appconfig.CacheConfig) (Backend, error) {
	return nil, fmt.Errorf("GCS cache backend is not enabled in this build (use -tags gcp)")
}
