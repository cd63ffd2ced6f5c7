package routing

import (
	"sync"
	"time"
)

// routeCache is a bounded, time-expiring store of discovery results.
// Readers and writers only need atomic per-key replacement, so a single
// mutex over the map is enough.
type routeCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   DiscoveryResult
	expires time.Time
}

func newRouteCache(maxSize int, ttl time.Duration) *routeCache {
	return &routeCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *routeCache) get(key string) (DiscoveryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return DiscoveryResult{}, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return DiscoveryResult{}, false
	}
	return entry.value, true
}

func (c *routeCache) put(key string, value DiscoveryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{value: value, expires: time.Now().Add(c.ttl)}
}

// evictLocked drops expired entries first and, if the cache is still full,
// the entry closest to expiry.
func (c *routeCache) evictLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxSize {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expires.Before(oldest) {
			oldestKey = key
			oldest = entry.expires
		}
	}
	delete(c.entries, oldestKey)
}
