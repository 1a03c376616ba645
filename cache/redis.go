package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// redisEntryTTL bounds how long archives live in Redis.
	redisEntryTTL = 7 * 24 * time.Hour
	// maxRedisArchiveSize is the largest archive accepted; Redis strings are capped at 512MB.
	maxRedisArchiveSize = 512 << 20
)

// RedisBackend stores archives as Redis strings with a sorted-set index for prefix lookups.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds configuration for RedisBackend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisBackend creates a Redis-backed cache backend.
func NewRedisBackend(cfg RedisConfig) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisBackend{client: client, prefix: cfg.Prefix}
}

func (b *RedisBackend) blobKey(key string) string {
	return b.prefix + "cache:" + key
}

func (b *RedisBackend) indexKey() string {
	return b.prefix + "cache-index"
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := b.client.Get(ctx, b.blobKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed for %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put implements Backend.
func (b *RedisBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if size > maxRedisArchiveSize {
		return fmt.Errorf("archive for %s is %d bytes, larger than the redis limit", key, size)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	ok, err := b.client.SetNX(ctx, b.blobKey(key), data, redisEntryTTL).Result()
	if err != nil {
		return fmt.Errorf("redis set failed for %s: %w", key, err)
	}
	if !ok {
		return ErrKeyExists
	}

	err = b.client.ZAdd(ctx, b.indexKey(), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: key,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis index failed for %s: %w", key, err)
	}
	return nil
}

// Latest implements Backend. Index entries whose archive expired are pruned.
func (b *RedisBackend) Latest(ctx context.Context, prefix string) (string, error) {
	keys, err := b.client.ZRevRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil {
		return "", fmt.Errorf("redis index lookup failed: %w", err)
	}

	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		n, err := b.client.Exists(ctx, b.blobKey(k)).Result()
		if err != nil {
			return "", fmt.Errorf("redis exists failed for %s: %w", k, err)
		}
		if n == 0 {
			_ = b.client.ZRem(ctx, b.indexKey(), k).Err()
			continue
		}
		return k, nil
	}
	return "", ErrNotFound
}

// Close closes the Redis client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
