package notify

import (
	"context"
	"sync"
)

// Cache keys for derived data the feed events affect.
const (
	KeyNotificationList = "notifications"
	KeyUnreadCount      = "unread_count"
)

// ThreadKey is the per-thread message cache key.
func ThreadKey(threadID string) string {
	return "thread:" + threadID
}

// Invalidator receives the derived-cache keys a processed event dirties.
// Invalidation runs for every logical event regardless of the suppression
// verdict; cache correctness must not depend on whether an alert is shown.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string)
}

type InvalidatorFunc func(ctx context.Context, keys ...string)

func (f InvalidatorFunc) Invalidate(ctx context.Context, keys ...string) { f(ctx, keys...) }

var _ Invalidator = (*VersionedCache)(nil)

// VersionedCache is the default invalidation sink: a generation counter per
// key. UI readers compare generations to decide when to refetch.
type VersionedCache struct {
	mu          sync.Mutex
	generations map[string]uint64
}

func NewVersionedCache() *VersionedCache {
	return &VersionedCache{
		generations: make(map[string]uint64),
	}
}

func (c *VersionedCache) Invalidate(_ context.Context, keys ...string) {
	c.mu.Lock()
	for _, key := range keys {
		c.generations[key]++
	}
	c.mu.Unlock()
}

// Generation returns the current generation for key; zero means the key was
// never invalidated.
func (c *VersionedCache) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key]
}
