// Package cache provides a small bounded TTL cache. It is constructed
// explicitly and injected where needed so tests can size, inspect, and clear
// it instead of fighting a package-level singleton.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]entry[V]
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// New creates a cache holding at most capacity entries, each valid for ttl.
// A capacity of zero disables the cache entirely.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		entries:  make(map[K]entry[V]),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	cached, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	if c.now().After(cached.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}

	return cached.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOneLocked()
	}

	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// evictOneLocked drops the entry closest to expiry. Expired entries go first.
func (c *Cache[K, V]) evictOneLocked() {
	var (
		victim   K
		earliest time.Time
		found    bool
	)

	for key, cached := range c.entries {
		if !found || cached.expiresAt.Before(earliest) {
			victim = key
			earliest = cached.expiresAt
			found = true
		}
	}

	if found {
		delete(c.entries, victim)
	}
}
