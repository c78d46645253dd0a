package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/gridview/model"
)

// Cache stores decoded record sets by key.
type Cache interface {
	// Get returns the cached records and whether the key was present.
	Get(ctx context.Context, key string) ([]model.Record, bool, error)

	// Set stores records under key for ttl.
	Set(ctx context.Context, key string, records []model.Record, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryCache is an in-process Cache with per-entry TTL and a size bound.
// Cached slices are shared between callers and must be treated as read-only.
type MemoryCache struct {
	maxEntries int

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	records   []model.Record
	expiresAt time.Time
}

// NewMemoryCache creates a memory cache. maxEntries of zero means 256.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryCache{
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry),
	}
}

// Get returns cached records if the entry exists and hasn't expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]model.Record, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.records, true, nil
}

// Set stores records with TTL, evicting expired entries and then the entry
// closest to expiry when at capacity.
func (c *MemoryCache) Set(_ context.Context, key string, records []model.Record, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{records: records, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked must be called with mu held.
func (c *MemoryCache) evictLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	delete(c.entries, oldestKey)
}
