package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process TTL cache. Expired entries are dropped
// lazily on read and swept by a background ticker.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewMemoryCache creates a memory cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries:   make(map[string]Entry),
		ttl:       ttl,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *MemoryCache) sweep() {
	defer close(c.sweepDone)

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if now.Sub(e.FetchedAt) > c.ttl {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Get returns the cached entry for a tenant if it is still fresh.
func (c *MemoryCache) Get(_ context.Context, tenantID string) (Entry, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()

	if !ok || time.Since(entry.FetchedAt) > c.ttl {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores a snapshot for a tenant.
func (c *MemoryCache) Set(_ context.Context, tenantID string, entry Entry) error {
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}
	c.mu.Lock()
	c.entries[tenantID] = entry
	c.mu.Unlock()
	return nil
}

// Invalidate removes a tenant's snapshot.
func (c *MemoryCache) Invalidate(_ context.Context, tenantID string) error {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
	return nil
}

// Close stops the background sweeper.
func (c *MemoryCache) Close() error {
	close(c.stopSweep)
	<-c.sweepDone
	return nil
}
