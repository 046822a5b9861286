package pricing

import (
	"sync"
	"time"

	"github.com/chain-portfolio/internal/metrics"
	"github.com/chain-portfolio/internal/types"
)

type cacheEntry struct {
	quote     types.PriceQuote
	fetchedAt time.Time
}

// TTLCache is a bounded in-process price cache. Entries are fresh for ttl;
// when the cache is full, expired entries are dropped first and then the
// oldest entries until there is room.
type TTLCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewTTLCache creates a cache. maxEntries <= 0 means 1000.
func NewTTLCache(ttl time.Duration, maxEntries int) *TTLCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &TTLCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

// Get returns a fresh quote for key
func (c *TTLCache) Get(key string) (types.PriceQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.PriceCacheLookups.WithLabelValues("miss").Inc()
		return types.PriceQuote{}, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		metrics.PriceCacheLookups.WithLabelValues("expired").Inc()
		return types.PriceQuote{}, false
	}
	metrics.PriceCacheLookups.WithLabelValues("hit").Inc()
	return e.quote, true
}

// Set stores a quote stamped with the current time
func (c *TTLCache) Set(key string, quote types.PriceQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{quote: quote, fetchedAt: c.now()}
	metrics.PriceCacheEntries.Set(float64(len(c.entries)))
}

// Len returns the number of stored entries, fresh or not
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were removed
func (c *TTLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.sweepLocked()
	metrics.PriceCacheEntries.Set(float64(len(c.entries)))
	return removed
}

func (c *TTLCache) sweepLocked() int {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// evictLocked makes room for one entry
func (c *TTLCache) evictLocked() {
	if c.sweepLocked() > 0 {
		return
	}

	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.fetchedAt.Before(oldest) {
			oldestKey, oldest = k, e.fetchedAt
		}
	}
	delete(c.entries, oldestKey)
}
