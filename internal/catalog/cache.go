package catalog

import (
	"container/list"
	"sync"
	"time"

	"hearthside/storefront/internal/metrics"
)

// listCache memoizes paginated list results for a short TTL. Capacity is
// fixed; the least recently used page is evicted when full. Any catalog
// mutation purges the whole cache.
type listCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	cap     int
	ttl     time.Duration
	nowFunc func() time.Time
}

type listEntry struct {
	key     string
	items   []Product
	next    string
	expires time.Time
}

func newListCache(capacity int, ttl time.Duration) *listCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &listCache{
		entries: make(map[string]*list.Element, capacity),
		order:   list.New(),
		cap:     capacity,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

func (c *listCache) get(key string) ([]Product, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		metrics.CatalogCache.WithLabelValues("miss").Inc()
		return nil, "", false
	}
	ent := el.Value.(*listEntry)
	if c.nowFunc().After(ent.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		metrics.CatalogCache.WithLabelValues("expired").Inc()
		return nil, "", false
	}
	c.order.MoveToFront(el)
	metrics.CatalogCache.WithLabelValues("hit").Inc()
	return ent.items, ent.next, true
}

func (c *listCache) put(key string, items []Product, next string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*listEntry)
		ent.items = items
		ent.next = next
		ent.expires = c.nowFunc().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	if len(c.entries) >= c.cap {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*listEntry).key)
		}
	}
	ent := &listEntry{key: key, items: items, next: next, expires: c.nowFunc().Add(c.ttl)}
	c.entries[key] = c.order.PushFront(ent)
}

func (c *listCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, c.cap)
	c.order.Init()
	metrics.CatalogCache.WithLabelValues("purge").Inc()
}
