package sessioncache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache bounded by TTL and entry count. When
// full, the least recently updated session is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]*Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, sessionID string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sessionID]
	if !ok {
		return nil, nil
	}
	if c.expired(e, c.now()) {
		delete(c.entries, sessionID)
		return nil, nil
	}
	cp := *e
	cp.Links = append([]string(nil), e.Links...)
	return &cp, nil
}

func (c *MemoryCache) Put(_ context.Context, sessionID string, u Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	prev := c.entries[sessionID]
	if prev != nil && c.expired(prev, now) {
		prev = nil
	}
	c.entries[sessionID] = apply(prev, sessionID, u, now)
	c.evict(now)
	return nil
}

func (c *MemoryCache) Clear(_ context.Context, sessionID string) error {
	c.mu.Lock()
	delete(c.entries, sessionID)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(e *Entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.UpdatedAt) >= c.ttl
}

// evict drops expired entries, then the oldest ones above maxEntries.
// Caller holds mu.
func (c *MemoryCache) evict(now time.Time) {
	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
		}
	}
	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		var oldestID string
		var oldest time.Time
		for id, e := range c.entries {
			if oldestID == "" || e.UpdatedAt.Before(oldest) {
				oldestID, oldest = id, e.UpdatedAt
			}
		}
		delete(c.entries, oldestID)
	}
}
