package search

import (
	"context"
	"sync"
	"time"

	"peerstream/internal/domain"
)

const (
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheMaxEntries = 200
)

// Cache stores search responses keyed by normalized query.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.SearchResult, bool, error)
	Set(ctx context.Context, key string, results []domain.SearchResult) error
}

type memoryCacheEntry struct {
	results   []domain.SearchResult
	expiresAt time.Time
}

// MemoryCache is a TTL cache bounded by entry count; when full it drops
// the entry closest to expiry.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]memoryCacheEntry
}

type MemoryCacheOption func(*MemoryCache)

func WithMemoryCacheTTL(ttl time.Duration) MemoryCacheOption {
	return func(c *MemoryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMemoryCacheMaxEntries(n int) MemoryCacheOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func NewMemoryCache(opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		ttl:        defaultCacheTTL,
		maxEntries: defaultCacheMaxEntries,
		now:        time.Now,
		entries:    make(map[string]memoryCacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]domain.SearchResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	out := make([]domain.SearchResult, len(entry.results))
	copy(out, entry.results)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, results []domain.SearchResult) error {
	stored := make([]domain.SearchResult, len(results))
	copy(stored, results)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = memoryCacheEntry{
		results:   stored,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) evictLocked() {
	var (
		victim  string
		oldest  time.Time
		haveOne bool
	)
	for key, entry := range c.entries {
		if !haveOne || entry.expiresAt.Before(oldest) {
			victim = key
			oldest = entry.expiresAt
			haveOne = true
		}
	}
	if haveOne {
		delete(c.entries, victim)
	}
}
