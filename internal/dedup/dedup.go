// Package dedup keeps a short-TTL set of recently processed event IDs so
// redundant deliveries from overlapping subscription sources collapse to
// one visible effect.
package dedup

import (
	"sync"
	"time"
)

const DefaultTTL = 5 * time.Second

type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time // id -> expiresAt

	done      chan struct{}
	closeOnce sync.Once
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

// Seen reports whether id was recorded within the TTL window and records it
// if not. Check and insert happen under one lock so two deliveries of the
// same event cannot both pass.
func (c *Cache) Seen(id string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if expiresAt, ok := c.entries[id]; ok && now.Before(expiresAt) {
		return true
	}
	c.entries[id] = now.Add(c.ttl)
	return false
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]time.Time)
	c.mu.Unlock()
}

func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			for id, expiresAt := range c.entries {
				if !now.Before(expiresAt) {
					delete(c.entries, id)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}
