// ABOUTME: Bounded TTL set of handled keys used to skip stale tool-call batches
// ABOUTME: Entries are pruned on write; eviction drops the oldest key first

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers keys for a TTL, holding at most maxSize of them.
// The zero value is not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a Cache. A non-positive ttl never expires keys; a non-positive
// maxSize means unbounded.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

func (c *Cache) live(e *entry, now time.Time) bool {
	return c.ttl <= 0 || now.Sub(e.seenAt) < c.ttl
}

// Seen reports whether key was recorded and has not expired.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.seen[key]
	return ok && c.live(e, c.now())
}

// Record marks every key as seen, refreshing keys already present.
func (c *Cache) Record(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, k := range keys {
		c.recordLocked(k, now)
	}
}

// Len returns the number of stored keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) recordLocked(key string, now time.Time) {
	c.pruneLocked(now)

	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}
	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.seen[key] = &entry{seenAt: now, element: c.order.PushBack(key)}
}

// pruneLocked drops expired keys from the front. Refreshes move keys to the
// back, so the list stays ordered by seenAt.
func (c *Cache) pruneLocked(now time.Time) {
	if c.ttl <= 0 {
		return
	}
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if c.live(c.seen[key], now) {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}
