// Package replay guards handshakes and frame sequences against replay. The
// Cache remembers handshake fingerprints for a bounded window, the Window
// tracks per-connection frame counters, and Stamp provides the monotonic
// timestamps that bound how long a fingerprint stays interesting.
package replay

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCacheCapacity bounds the fingerprint cache when no capacity is
// configured.
const DefaultCacheCapacity = 4096

// DefaultValidity is how long a handshake fingerprint is retained. A replay
// older than this is already rejected by the stamp check, so keeping the
// fingerprint longer buys nothing.
const DefaultValidity = 90 * time.Second

// Cache is a bounded LRU set of handshake fingerprints. Safe for concurrent
// use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	validity time.Duration
	now      func() time.Time
	entries  map[[32]byte]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key [32]byte
	at  time.Time
}

// NewCache returns a cache holding at most capacity fingerprints, each for
// at most validity. Zero values select the defaults.
func NewCache(capacity int, validity time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Cache{
		capacity: capacity,
		validity: validity,
		now:      time.Now,
		entries:  make(map[[32]byte]*list.Element, capacity),
		order:    list.New(),
	}
}

// Seen marks a fingerprint and reports whether it was already present.
// Inserting may evict expired entries and, past capacity, the least recently
// seen ones; the count of evictions is returned for metrics.
func (c *Cache) Seen(key [32]byte) (replayed bool, evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(cacheEntry)
		if now.Sub(entry.at) <= c.validity {
			c.order.MoveToFront(elem)
			return true, 0
		}
		// Expired entry: the fingerprint is stale, treat as fresh.
		c.order.Remove(elem)
		delete(c.entries, key)
		evicted++
	}

	elem := c.order.PushFront(cacheEntry{key: key, at: now})
	c.entries[key] = elem

	for back := c.order.Back(); back != nil && back != elem; back = c.order.Back() {
		entry := back.Value.(cacheEntry)
		if c.order.Len() <= c.capacity && now.Sub(entry.at) <= c.validity {
			break
		}
		c.order.Remove(back)
		delete(c.entries, entry.key)
		evicted++
	}
	return false, evicted
}

// Len returns the number of retained fingerprints.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Reset drops every retained fingerprint.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[[32]byte]*list.Element, c.capacity)
	c.order.Init()
}
