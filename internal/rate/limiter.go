// Package rate provides fixed-window request limiting keyed by client
// identity. Two backends exist: a bounded in-process table (default) and a
// Redis-backed counter for deployments that need shared limits across
// instances.
package rate

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Policy configures one endpoint's budget: at most MaxRequests per Window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Limiter decides whether the current request from key is permitted.
// Fixed-window semantics: bursts up to ~2x at window boundaries are an
// accepted tradeoff.
type Limiter interface {
	Allow(ctx context.Context, key string, p Policy) (bool, error)
}

// =========================
// In-memory backend (bounded LRU)
// =========================

type Memory struct {
	mu      sync.Mutex
	cap     int // max keys to retain
	items   map[string]*list.Element
	lru     *list.List       // front = most recently used
	nowFunc func() time.Time // for tests; defaults to time.Now
}

type winEntry struct {
	key         string
	count       int
	windowStart time.Time
}

// NewMemory creates a bounded fixed-window limiter. Capacity caps the key
// table; the least recently used key is evicted when full, so the table
// cannot grow without bound under many distinct clients.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &Memory{
		cap:     capacity,
		items:   make(map[string]*list.Element, capacity/2),
		lru:     list.New(),
		nowFunc: time.Now,
	}
}

// Allow records a request for key and reports whether it is within budget.
// Increment-and-compare runs under one lock, so concurrent requests on the
// same key cannot both slip past the limit.
func (m *Memory) Allow(_ context.Context, key string, p Policy) (bool, error) {
	if p.MaxRequests <= 0 || p.Window <= 0 {
		return true, nil
	}
	now := m.nowFunc()
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		en := el.Value.(*winEntry)
		if now.Sub(en.windowStart) >= p.Window {
			en.count = 1
			en.windowStart = now
			m.lru.MoveToFront(el)
			return true, nil
		}
		en.count++
		m.lru.MoveToFront(el)
		return en.count <= p.MaxRequests, nil
	}

	// New key: evict LRU if at capacity.
	if m.lru.Len() >= m.cap {
		if back := m.lru.Back(); back != nil {
			del := back.Value.(*winEntry)
			delete(m.items, del.key)
			m.lru.Remove(back)
		}
	}
	en := &winEntry{key: key, count: 1, windowStart: now}
	el := m.lru.PushFront(en)
	m.items[key] = el
	return true, nil
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
