//go:build gcp

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSBackend stores archives in a Google Cloud Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds configuration for GCSBackend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSBackend creates a GCS-backed cache backend using application default credentials.
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSBackend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *GCSBackend) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.prefix + key + ".tar.gz")
}

// Get implements Backend.
func (b *GCSBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for %s: %w", key, err)
	}
	return r, nil
}

// Put implements Backend.
func (b *GCSBackend) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	obj := b.object(key)
	_, err := obj.Attrs(ctx)
	if err == nil {
		return ErrKeyExists
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs attrs failed for %s: %w", key, err)
	}

	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/gzip"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed for %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed for %s: %w", key, err)
	}
	return nil
}

// Latest implements Backend.
func (b *GCSBackend) Latest(ctx context.Context, prefix string) (string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: b.prefix + prefix})

	var (
		best   string
		bestAt time.Time
	)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("gcs list failed for %s: %w", prefix, err)
		}
		if best == "" || attrs.Updated.After(bestAt) {
			best, bestAt = attrs.Name, attrs.Updated
		}
	}
	if best == "" {
		return "", ErrNotFound
	}
	return trimObjectKey(best, b.prefix), nil
}

// Close closes the GCS client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
