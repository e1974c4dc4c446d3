// Package prefs is a read-through cache over the profile store's per-user
// notification settings, refreshed lazily within a bounded staleness
// window. Store failures degrade to defaults that never suppress: the rule
// an unavailable setting feeds simply does not apply, except the global
// toggle which defaults to enabled.
package prefs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vicinityhq/realtime/internal/store"
	"github.com/vicinityhq/realtime/internal/xslog"
)

const DefaultStaleAfter = time.Minute

type Cache struct {
	store      store.Store
	logger     *slog.Logger
	staleAfter time.Duration
	now        func() time.Time

	mu        sync.Mutex
	subjectID string
	fetchedAt time.Time
	prefs     store.Preferences
	quiet     store.QuietHours
	muted     map[string]struct{}
}

func NewCache(s store.Store, staleAfter time.Duration, logger *slog.Logger) *Cache {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Cache{
		store:      s,
		logger:     logger,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetSubject switches the cached identity. The cache is dropped so the next
// read fetches the new subject's settings; settings must never leak across
// an identity switch.
func (c *Cache) SetSubject(subjectID string) {
	c.mu.Lock()
	if c.subjectID != subjectID {
		c.subjectID = subjectID
		c.resetLocked()
	}
	c.mu.Unlock()
}

// Invalidate forces a refresh on the next read.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *Cache) resetLocked() {
	c.fetchedAt = time.Time{}
	c.prefs = store.DefaultPreferences()
	c.quiet = store.QuietHours{}
	c.muted = map[string]struct{}{}
}

func (c *Cache) Preferences(ctx context.Context) store.Preferences {
	c.refresh(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs
}

func (c *Cache) QuietHours(ctx context.Context) store.QuietHours {
	c.refresh(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quiet
}

func (c *Cache) MutedTopics(ctx context.Context) map[string]struct{} {
	c.refresh(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// refresh fetches all three settings in one pass when the snapshot is
// stale. Fetches happen outside the lock; the cached snapshot is swapped
// in one critical section so readers never observe a torn update.
func (c *Cache) refresh(ctx context.Context) {
	c.mu.Lock()
	subjectID := c.subjectID
	fresh := !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.staleAfter
	c.mu.Unlock()

	if fresh || subjectID == "" {
		return
	}

	prefs, err := c.store.GetPreferences(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.WarnContext(ctx, "preferences read failed, defaulting to enabled",
				xslog.SubjectID(subjectID),
				xslog.Error(err),
			)
		}
		prefs = store.DefaultPreferences()
	}

	quiet, err := c.store.GetQuietHours(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.WarnContext(ctx, "quiet hours read failed, window disabled",
				xslog.SubjectID(subjectID),
				xslog.Error(err),
			)
		}
		quiet = store.QuietHours{}
	}

	muted, err := c.store.GetMutedTopics(ctx, subjectID)
	if err != nil {
		c.logger.WarnContext(ctx, "muted topics read failed, mute list empty",
			xslog.SubjectID(subjectID),
			xslog.Error(err),
		)
		muted = map[string]struct{}{}
	}

	c.mu.Lock()
	// a concurrent SetSubject wins over a stale in-flight refresh
	if c.subjectID == subjectID {
		c.prefs = prefs
		c.quiet = quiet
		c.muted = muted
		c.fetchedAt = c.now()
	}
	c.mu.Unlock()
}
