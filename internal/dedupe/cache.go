// ABOUTME: TTL cache remembering recently processed queue message ids.
// ABOUTME: Redelivered mentions must not spawn twice even across close/respawn.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const cleanupInterval = time.Minute

// Cache is a thread-safe, TTL-based, size-bounded set of seen message
// ids. The session-key check inside the hub already makes live duplicate
// spawns no-ops; this cache additionally absorbs redeliveries of a
// mention whose agent has since been closed.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // insertion order, oldest at the front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// New creates a cache and starts its background expiry sweep.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Duplicate atomically reports whether id was seen within the TTL and
// marks it seen either way, so a steady redelivery stream keeps the id
// remembered past the original deadline. The check and the mark are one
// critical section so two goroutines cannot both claim a fresh id.
func (c *Cache) Duplicate(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	dup := ok && time.Since(e.seenAt) < c.ttl
	c.markLocked(id)
	return dup
}

// Forget releases an id so its next delivery counts as fresh. Used when
// a message was marked but deliberately left unconsumed.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		c.order.Remove(e.element)
		delete(c.entries, id)
	}
}

// Len reports the number of retained ids, expired ones included until
// the next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) markLocked(id string) {
	now := time.Now()

	if e, ok := c.entries[id]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.entries, front.Value.(string))
		}
	}

	c.entries[id] = &entry{seenAt: now, element: c.order.PushBack(id)}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, e := range c.entries {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.entries, id)
		}
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
