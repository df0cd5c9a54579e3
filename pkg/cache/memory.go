package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lborres/bhvr/core"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 500
)

// Memory is an in-memory TTL cache bounded by entry count.
// The server uses it for verified sessions, the web frontend for visitor state.
type Memory[V any] struct {
	entries map[string]*record[V]
	mu      sync.RWMutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	// counters
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
}

type record[V any] struct {
	value    V
	cachedAt time.Time
}

// Sessions are cached by token hash.
var _ core.CacheWithStats = (*Memory[*core.Session])(nil)

// NewMemory creates a new in-memory cache
func NewMemory[V any](c core.CacheConfig) *Memory[V] {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}

	return &Memory[V]{
		entries: make(map[string]*record[V]),
		ttl:     c.TTL,
		maxSize: c.MaxSize,
		now:     time.Now,
	}
}

// NewSessionCache creates the session cache used by the session manager.
func NewSessionCache(c core.CacheConfig) *Memory[*core.Session] {
	return NewMemory[*core.Session](c)
}

// Get retrieves a value; expired entries count as misses and are dropped.
func (c *Memory[V]) Get(key string) (V, error) {
	var zero V

	c.mu.RLock()
	rec, exists := c.entries[key]
	var (
		value    V
		cachedAt time.Time
	)
	if exists {
		value, cachedAt = rec.value, rec.cachedAt
	}
	c.mu.RUnlock()

	if !exists {
		c.misses.Add(1)
		return zero, core.ErrCacheNotFound
	}

	if c.now().Sub(cachedAt) > c.ttl {
		c.misses.Add(1)
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && c.now().Sub(cur.cachedAt) > c.ttl {
			delete(c.entries, key)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
		return zero, core.ErrCacheNotFound
	}

	c.hits.Add(1)
	return value, nil
}

// Set stores a value, evicting the oldest entry when full
func (c *Memory[V]) Set(key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(key, value)
	return nil
}

// GetOrCreate returns the live value for key, storing the result of create when
// the key is absent or expired. create runs without the lock held; when
// another caller stores key first, its value wins and the created one is
// dropped. The returned bool reports whether the returned value was created
// by this call.
func (c *Memory[V]) GetOrCreate(key string, create func() V) (V, bool) {
	c.mu.Lock()
	v, ok := c.touchLocked(key)
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
		return v, false
	}

	c.misses.Add(1)
	created := create()

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.touchLocked(key); ok {
		return v, false
	}
	c.setLocked(key, created)
	return created, true
}

// touchLocked returns the live value for key and slides its expiry.
func (c *Memory[V]) touchLocked(key string) (V, bool) {
	rec, ok := c.entries[key]
	if !ok || c.now().Sub(rec.cachedAt) > c.ttl {
		var zero V
		return zero, false
	}
	// Visitor state slides with use.
	rec.cachedAt = c.now()
	return rec.value, true
}

func (c *Memory[V]) setLocked(key string, value V) {
	if _, replacing := c.entries[key]; !replacing && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[key] = &record[V]{
		value:    value,
		cachedAt: c.now(),
	}
	c.sets.Add(1)
}

func (c *Memory[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, rec := range c.entries {
		if !found || rec.cachedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, rec.cachedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
	}
}

// Delete removes an entry
func (c *Memory[V]) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, existed := c.entries[key]; existed {
		delete(c.entries, key)
		c.deletes.Add(1)
	}
	return nil
}

// Clear removes all entries
func (c *Memory[V]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*record[V])
	return nil
}

// Len returns the number of cached entries, expired or not
func (c *Memory[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cache statistics
func (c *Memory[V]) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}
