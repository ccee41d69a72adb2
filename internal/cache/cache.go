// Package cache memoizes aggregation results for a short freshness
// window, absorbing repeated queries from UI re-renders without hitting
// upstream sources.
package cache

import (
	"sync"
	"time"

	"github.com/chainhist/chainhist/internal/model"
)

// Key scopes one cached result set.
type Key struct {
	Address               string
	Network               string
	Page                  int
	PageSize              int
	IncludeTokenTransfers bool
}

type entry struct {
	data     []model.Transaction
	storedAt time.Time
}

// Cache is a thread-safe TTL cache with lazy eviction: stale entries are
// treated as absent on read and overwritten on the next successful
// aggregation. An optional sweep goroutine bounds memory; it is not
// required for correctness.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Key]entry
	stopCh  chan struct{}

	nowFunc func() time.Time
}

// New builds a cache with the given freshness window. If sweepEvery > 0,
// a janitor goroutine periodically removes expired entries until Close.
func New(ttl, sweepEvery time.Duration) *Cache {
	c := &Cache{
		ttl:     ttl,
		entries: map[Key]entry{},
		stopCh:  make(chan struct{}),
		nowFunc: time.Now,
	}
	if sweepEvery > 0 {
		go c.sweep(sweepEvery)
	}
	return c
}

// Get returns the cached data for key if present and fresh. A stale entry
// is evicted and reported absent.
func (c *Cache) Get(key Key) ([]model.Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.nowFunc().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

// Put stores data for key, stamping it with the current time.
func (c *Cache) Put(key Key, data []model.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{data: data, storedAt: c.nowFunc()}
}

// Len reports the number of entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the sweep goroutine if one is running.
func (c *Cache) Close() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

func (c *Cache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}
