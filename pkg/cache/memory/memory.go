// Package memory implements the in-memory result cache tier: a bounded map
// with LRU eviction and TTL expiry.
package memory

import (
	"container/list"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/pkg/models"
)

// DefaultCapacity is the default number of results held in memory.
const DefaultCapacity = 100

// DefaultTTL is the default lifetime of a cached result.
const DefaultTTL = 5 * time.Minute

type entry struct {
	key       string
	result    *models.QueryResult
	expiresAt time.Time
}

// Cache is a bounded in-memory result cache. A single mutex guards the map,
// the recency list, and the hit/miss counters.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	hits     int64
	misses   int64
	now      func() time.Time
}

// New creates a Cache with the given capacity and TTL. Non-positive values
// fall back to the defaults.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached result for key. Expired entries are evicted lazily
// on access; expiry is exclusive, so an entry is gone the instant its
// expires_at is reached. A hit promotes the entry to most-recently-used.
func (c *Cache) Get(key string) (*models.QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.result, true
}

// Put stores a successful result under key, evicting the least-recently-used
// entry when the cache is full. Error-tagged results are never cached.
func (c *Cache) Put(key string, res *models.ExecResult) {
	if !res.OK() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.result = res.Result
		e.expiresAt = expires
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.items, back.Value.(*entry).key)
		}
	}

	c.items[key] = c.order.PushFront(&entry{
		key:       key,
		result:    res.Result,
		expiresAt: expires,
	})
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats reports this tier's size and hit rate.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return models.CacheStats{
		Size:    c.order.Len(),
		MaxSize: c.capacity,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}
