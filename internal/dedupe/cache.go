// ABOUTME: Thread-safe TTL cache remembering the result of idempotent requests.
// ABOUTME: Maps a client request id to the value it produced so retries replay it.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the value, timestamp and list element for a cached key.
type cacheEntry[V any] struct {
	value     V
	timestamp time.Time
	element   *list.Element
}

// call tracks an in-flight Do for one key.
type call struct {
	done chan struct{}
}

// Cache provides a thread-safe, TTL-based, size-limited map from request keys
// to the value the first successful request produced.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Cache[V any] struct {
	mu       sync.Mutex
	seen     map[string]*cacheEntry[V]
	inflight map[string]*call
	order    *list.List // keys in insertion order (oldest at front)
	ttl      time.Duration
	maxSize  int
	now      func() time.Time
	done     chan struct{}
	closed   bool
}

// New creates a new cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache[V]{
		seen:     make(map[string]*cacheEntry[V]),
		inflight: make(map[string]*call),
		order:    list.New(),
		ttl:      ttl,
		maxSize:  maxSize,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the value remembered for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	entry, ok := c.seen[key]
	if !ok || c.now().Sub(entry.timestamp) >= c.ttl {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Put remembers value for key. If the cache is at capacity the oldest entry
// is evicted to make room.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value)
}

// Do returns the remembered value for key, or runs fn and remembers its
// result when fn succeeds. Concurrent calls with the same key wait for the
// first to finish, so fn runs at most once per key while it keeps succeeding.
// replayed reports whether the value came from an earlier call.
func (c *Cache[V]) Do(key string, fn func() (V, error)) (value V, replayed bool, err error) {
	for {
		c.mu.Lock()
		if v, ok := c.getLocked(key); ok {
			c.mu.Unlock()
			return v, true, nil
		}
		if inflight, ok := c.inflight[key]; ok {
			c.mu.Unlock()
			<-inflight.done
			continue
		}
		cl := &call{done: make(chan struct{})}
		c.inflight[key] = cl
		c.mu.Unlock()

		value, err = fn()

		c.mu.Lock()
		if err == nil {
			c.putLocked(key, value)
		}
		delete(c.inflight, key)
		close(cl.done)
		c.mu.Unlock()
		return value, false, err
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// putLocked is the internal insert. Must be called with mu held.
func (c *Cache[V]) putLocked(key string, value V) {
	now := c.now()

	if entry, exists := c.seen[key]; exists {
		entry.value = value
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry[V]{
		value:     value,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache[V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
