package cache

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	created time.Time
}

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

// Put implements Backend.
func (b *MemoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; ok {
		return ErrKeyExists
	}
	b.entries[key] = memoryEntry{data: data, created: b.now()}
	return nil
}

// Latest implements Backend.
func (b *MemoryBackend) Latest(_ context.Context, prefix string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		best    string
		bestAt  time.Time
		matched bool
	)
	for k, e := range b.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !matched || e.created.After(bestAt) || (e.created.Equal(bestAt) && k > best) {
			best, bestAt, matched = k, e.created, true
		}
	}
	if !matched {
		return "", ErrNotFound
	}
	return best, nil
}

// Keys returns the stored keys.
func (b *MemoryBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
