// Package notify orchestrates notification delivery: one primary feed
// subscription plus the in-process fallback bus funnel into a single
// handler that deduplicates, invalidates derived caches, evaluates the
// suppression policy and surfaces at most one alert per logical event.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vicinityhq/realtime/internal/bus"
	"github.com/vicinityhq/realtime/internal/dedup"
	"github.com/vicinityhq/realtime/internal/policy"
	"github.com/vicinityhq/realtime/internal/prefs"
	"github.com/vicinityhq/realtime/internal/session"
	"github.com/vicinityhq/realtime/internal/transport"
	"github.com/vicinityhq/realtime/internal/xslog"
)

type Coordinator struct {
	sessions    *session.Manager
	fallback    *bus.Bus
	dedup       *dedup.Cache
	prefs       *prefs.Cache
	chain       policy.Chain
	alerter     Alerter
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time

	mu             sync.Mutex
	running        bool
	subjectID      string
	unsubscribeBus func()
	activeThreadID string
}

type Deps struct {
	Sessions    *session.Manager
	Fallback    *bus.Bus
	Dedup       *dedup.Cache
	Prefs       *prefs.Cache
	Alerter     Alerter
	Invalidator Invalidator
	Logger      *slog.Logger
}

func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{
		sessions:    deps.Sessions,
		fallback:    deps.Fallback,
		dedup:       deps.Dedup,
		prefs:       deps.Prefs,
		chain:       policy.Default(),
		alerter:     deps.Alerter,
		invalidator: deps.Invalidator,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// Start opens the per-user feed subscription and the fallback bus listener.
// Starting for a new subject stops the previous one first, so an event can
// never be evaluated against the wrong identity's context.
func (c *Coordinator) Start(ctx context.Context, subjectID string) error {
	c.mu.Lock()
	if c.running && c.subjectID == subjectID {
		c.mu.Unlock()
		return nil
	}
	running := c.running
	c.mu.Unlock()

	if running {
		c.Stop(ctx)
	}

	c.prefs.SetSubject(subjectID)

	c.mu.Lock()
	c.running = true
	c.subjectID = subjectID
	c.mu.Unlock()

	topic := transport.FeedTopic(subjectID)
	handler := func(payload []byte) {
		c.handleRaw(ctx, subjectID, payload)
	}

	_, err := c.sessions.Open(ctx, topic, transport.Callbacks{
		OnRow: func(row transport.RowEvent) {
			handler(row.Payload)
		},
	})
	if err != nil {
		c.logger.WarnContext(ctx, "feed subscribe failed, relying on fallback path",
			xslog.SubjectID(subjectID),
			xslog.Error(err),
		)
	}

	unsubscribe := c.fallback.Subscribe(topic, handler)

	c.mu.Lock()
	c.unsubscribeBus = unsubscribe
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "notification delivery started", xslog.SubjectID(subjectID))
	return nil
}

// Stop tears down both delivery paths and clears the dedup cache. Safe to
// call repeatedly.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	subjectID := c.subjectID
	c.subjectID = ""
	c.activeThreadID = ""
	unsubscribe := c.unsubscribeBus
	c.unsubscribeBus = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if err := c.sessions.Close(ctx, transport.FeedTopic(subjectID)); err != nil {
		c.logger.WarnContext(ctx, "feed session close failed",
			xslog.SubjectID(subjectID),
			xslog.Error(err),
		)
	}
	c.dedup.Clear()

	c.logger.InfoContext(ctx, "notification delivery stopped", xslog.SubjectID(subjectID))
}

// SetActiveThread records which conversation the user is viewing; message
// events for it are suppressed since the content is already on screen.
func (c *Coordinator) SetActiveThread(threadID string) {
	c.mu.Lock()
	c.activeThreadID = threadID
	c.mu.Unlock()
}

func (c *Coordinator) ActiveThread() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeThreadID
}

// handleRaw is the single funnel for both delivery paths.
func (c *Coordinator) handleRaw(ctx context.Context, subjectID string, payload []byte) {
	c.mu.Lock()
	stale := !c.running || c.subjectID != subjectID
	activeThreadID := c.activeThreadID
	c.mu.Unlock()
	if stale {
		return
	}

	ev := decodeEvent(ctx, payload, c.logger)

	// An empty ID cannot be deduplicated; fail open and display rather than
	// risk silently losing a real alert.
	if ev.ID != "" && c.dedup.Seen(ev.ID) {
		c.logger.DebugContext(ctx, "dropping duplicate delivery", xslog.EventID(ev.ID))
		return
	}

	// Invalidation runs before the verdict; derived caches must be correct
	// even for suppressed events.
	keys := []string{KeyNotificationList, KeyUnreadCount}
	if ev.Category == policy.CategoryMessage && ev.Context.ThreadID != "" {
		keys = append(keys, ThreadKey(ev.Context.ThreadID))
	}
	c.invalidator.Invalidate(ctx, keys...)

	verdict := c.chain.Evaluate(
		policy.Event{
			ID:       ev.ID,
			Category: ev.Category,
			ThreadID: ev.Context.ThreadID,
		},
		policy.Context{
			ActiveThreadID:    activeThreadID,
			MutedTopics:       c.prefs.MutedTopics(ctx),
			QuietHours:        c.prefs.QuietHours(ctx),
			GlobalPushEnabled: c.prefs.Preferences(ctx).GlobalPushEnabled,
			Now:               c.now(),
		},
	)
	if verdict.Suppress {
		c.logger.DebugContext(ctx, "notification suppressed",
			xslog.EventID(ev.ID),
			xslog.Category(ev.Category),
			xslog.Reason(verdict.Reason),
		)
		return
	}

	c.alerter.Alert(ctx, Alert{Title: ev.Title, Body: ev.Body})
}
