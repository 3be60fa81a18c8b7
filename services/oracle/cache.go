package oracle

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "oracle_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "oracle_cache_miss_total"})
)

type cachedFeed struct {
	feed     PriceFeed
	cachedAt time.Time
}

// feedCache holds recently read feeds. Entries only save a database round
// trip; staleness of the price itself is judged by the caller.
type feedCache struct {
	mu    sync.RWMutex
	items map[string]cachedFeed
	ttl   time.Duration
	group singleflight.Group
}

func newFeedCache(ttl time.Duration) *feedCache {
	return &feedCache{
		items: make(map[string]cachedFeed),
		ttl:   ttl,
	}
}

func (c *feedCache) get(asset string, now time.Time) (PriceFeed, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[asset]
	if !ok || (c.ttl > 0 && now.Sub(v.cachedAt) > c.ttl) {
		cacheMiss.Inc()
		return PriceFeed{}, false
	}
	cacheHits.Inc()
	return v.feed, true
}

func (c *feedCache) set(feed PriceFeed, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[feed.Asset] = cachedFeed{feed: feed, cachedAt: now}
}

func (c *feedCache) invalidate(asset string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, asset)
	c.group.Forget(asset)
}
