package cache

import (
	"sync"
	"time"
)

// Memory is an in-process TTL cache. Once it holds more than maxEntries the
// oldest inserted entry is evicted.
type Memory[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	items      map[string]entry[V]
	// insertion order, oldest first
	order []string
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

var _ Cache[int] = (*Memory[int])(nil)

// Option configures a Memory cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewMemory creates a cache. A non-positive ttl keeps entries until
// evicted; a non-positive maxEntries disables the size bound.
func NewMemory[V any](ttl time.Duration, maxEntries int, opts ...Option) *Memory[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        o.now,
		items:      make(map[string]entry[V]),
	}
}

func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	ent, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(ent.storedAt) >= c.ttl {
		delete(c.items, key)
		c.removeFromOrder(key)
		return zero, false
	}
	return ent.value, true
}

func (c *Memory[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; exists {
		c.removeFromOrder(key)
	}
	c.items[key] = entry[V]{value: value, storedAt: c.now()}
	c.order = append(c.order, key)

	for c.maxEntries > 0 && len(c.items) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
}

func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	c.removeFromOrder(key)
}

func (c *Memory[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Memory[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
