package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is a bounded in-process Service with LRU eviction. It backs
// the desk when Redis is disabled and in tests.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type memItem struct {
	key      string
	value    []byte
	expireAt time.Time
}

type MemoryOption func(*MemoryCache)

// WithMaxEntries bounds the cache. The least recently used entry is evicted
// once the bound is reached.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithDefaultTTL sets the lifetime of entries stored with a zero ttl.
func WithDefaultTTL(d time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: 1000,
		ttl:     7 * 24 * time.Hour,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, data, ttl)
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	it := c.live(key)
	if it == nil {
		c.mu.Unlock()
		return ErrCacheMiss
	}
	data := it.value
	c.mu.Unlock()
	return decode(data, dest)
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.remove(k)
	}
	return nil
}

func (c *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live(key) != nil {
		return "", false, nil
	}
	token := newToken()
	c.put(key, []byte(token), ttl)
	return token, true, nil
}

func (c *MemoryCache) Unlock(_ context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it := c.live(key); it != nil && string(it.value) == token {
		c.remove(key)
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache) Close() error { return nil }

// live returns the unexpired item for key and marks it used. Expired items
// are dropped on sight.
func (c *MemoryCache) live(key string) *memItem {
	el, ok := c.items[key]
	if !ok {
		return nil
	}
	it := el.Value.(*memItem)
	if !c.now().Before(it.expireAt) {
		c.remove(key)
		return nil
	}
	c.lru.MoveToFront(el)
	return it
}

func (c *MemoryCache) put(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	exp := c.now().Add(ttl)
	if el, ok := c.items[key]; ok {
		it := el.Value.(*memItem)
		it.value, it.expireAt = data, exp
		c.lru.MoveToFront(el)
		return
	}
	for len(c.items) >= c.maxSize {
		c.remove(c.lru.Back().Value.(*memItem).key)
	}
	c.items[key] = c.lru.PushFront(&memItem{key: key, value: data, expireAt: exp})
}

func (c *MemoryCache) remove(key string) {
	if el, ok := c.items[key]; ok {
		c.lru.Remove(el)
		delete(c.items, key)
	}
}
