// Package cache defines the caching contract used by the request layer.
//
// The durable implementation lives in pkg/store (backed by the sqlite
// cache table). This package only holds the interface plus two small
// implementations: an in-memory cache for tests and short-lived tools,
// and a null cache for callers that want caching disabled.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cacher is the read/write interface the HTTP client caches through.
type Cacher interface {
	// GetCache returns the cached value for key, if present.
	GetCache(ctx context.Context, key string) ([]byte, bool)
	// GetCacheFresh returns the cached value only if it is younger
	// than maxAge. A maxAge of zero means no age limit.
	GetCacheFresh(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool)
	// SetCache stores value under key, replacing any previous entry.
	SetCache(ctx context.Context, key string, value []byte) error
}

type memoryEntry struct {
	value   []byte
	created time.Time
}

// Memory is a process-local Cacher. It never evicts; callers are
// expected to be short-lived (tests, one-shot tools).
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) GetCache(ctx context.Context, key string) ([]byte, bool) {
	return m.GetCacheFresh(ctx, key, 0)
}

func (m *Memory) GetCacheFresh(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if maxAge > 0 && time.Since(e.created) > maxAge {
		return nil, false
	}
	return e.value, true
}

func (m *Memory) SetCache(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, created: time.Now()}
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Null is a Cacher that stores nothing and never hits.
type Null struct{}

func (Null) GetCache(ctx context.Context, key string) ([]byte, bool) { return nil, false }

func (Null) GetCacheFresh(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool) {
	return nil, false
}

func (Null) SetCache(ctx context.Context, key string, value []byte) error { return nil }
