package pricing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chain-portfolio/internal/types"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Now()
	c := NewTTLCache(30*time.Second, 10)
	c.now = func() time.Time { return now }

	c.Set("cg:bitcoin", types.PriceQuote{Price: 51000})

	q, ok := c.Get("cg:bitcoin")
	assert.True(t, ok)
	assert.Equal(t, 51000.0, q.Price)

	now = now.Add(29 * time.Second)
	_, ok = c.Get("cg:bitcoin")
	assert.True(t, ok, "entry should still be fresh")

	now = now.Add(2 * time.Second)
	_, ok = c.Get("cg:bitcoin")
	assert.False(t, ok, "entry should have expired")
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped on read")
}

func TestTTLCacheBoundedEvictsOldest(t *testing.T) {
	now := time.Now()
	c := NewTTLCache(time.Hour, 3)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), types.PriceQuote{Price: float64(i)})
		now = now.Add(time.Second)
	}
	c.Set("k3", types.PriceQuote{Price: 3})

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestTTLCacheEvictsExpiredBeforeOldest(t *testing.T) {
	now := time.Now()
	c := NewTTLCache(10*time.Second, 2)
	c.now = func() time.Time { return now }

	c.Set("stale", types.PriceQuote{Price: 1})
	now = now.Add(11 * time.Second)
	c.Set("fresh", types.PriceQuote{Price: 2})
	c.Set("newer", types.PriceQuote{Price: 3})

	_, ok := c.Get("fresh")
	assert.True(t, ok)
	_, ok = c.Get("newer")
	assert.True(t, ok)
}

func TestTTLCacheSweep(t *testing.T) {
	now := time.Now()
	c := NewTTLCache(time.Second, 10)
	c.now = func() time.Time { return now }

	c.Set("a", types.PriceQuote{Price: 1})
	c.Set("b", types.PriceQuote{Price: 2})
	now = now.Add(2 * time.Second)
	c.Set("c", types.PriceQuote{Price: 3})

	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 1, c.Len())
}
