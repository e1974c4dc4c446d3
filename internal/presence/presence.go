// Package presence maintains the local liveness session and a derived view
// of which peers are online. The local side is a small state machine driven
// by lifecycle signals and a heartbeat; the remote side folds membership
// events into the online set: sync replaces, join merges, leave removes.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vicinityhq/realtime/internal/session"
	"github.com/vicinityhq/realtime/internal/store"
	"github.com/vicinityhq/realtime/internal/transport"
	"github.com/vicinityhq/realtime/internal/xslog"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateSubscribing   State = "subscribing"
	StateForeground    State = "foreground"
	StateBackground    State = "background"
	StateTerminating   State = "terminating"
)

const DefaultHeartbeatPeriod = 30 * time.Second

type Watcher func(online map[string]time.Time)

type Store struct {
	sessions        *session.Manager
	profile         store.Store
	logger          *slog.Logger
	heartbeatPeriod time.Duration
	platformTag     string
	now             func() time.Time

	mu        sync.Mutex
	state     State
	subjectID string
	sess      *session.Session
	online    map[string]time.Time
	watchers  map[int]Watcher
	nextWatch int
	stop      chan struct{}
}

type Config struct {
	HeartbeatPeriod time.Duration
	PlatformTag     string
}

func NewStore(sessions *session.Manager, profile store.Store, cfg Config, logger *slog.Logger) *Store {
	period := cfg.HeartbeatPeriod
	if period <= 0 {
		period = DefaultHeartbeatPeriod
	}
	return &Store{
		sessions:        sessions,
		profile:         profile,
		logger:          logger,
		heartbeatPeriod: period,
		platformTag:     cfg.PlatformTag,
		now:             time.Now,
		state:           StateUninitialized,
		online:          make(map[string]time.Time),
		watchers:        make(map[int]Watcher),
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the online set: subject id -> last announced.
func (s *Store) Snapshot() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[string]time.Time {
	out := make(map[string]time.Time, len(s.online))
	for id, at := range s.online {
		out[id] = at
	}
	return out
}

// Watch registers an observer called with a fresh snapshot after every
// online-set change. The returned function unregisters it.
func (s *Store) Watch(w Watcher) func() {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = w
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Initialize opens the presence session for subjectID. Calling it again for
// the same subject is a no-op; a different subject tears the old session
// down first so the old identity's withdrawal precedes the new subscribe.
func (s *Store) Initialize(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	if s.state != StateUninitialized && s.subjectID == subjectID {
		s.mu.Unlock()
		return nil
	}
	alreadyActive := s.state != StateUninitialized
	s.mu.Unlock()

	if alreadyActive {
		s.Cleanup(ctx)
	}

	stop := make(chan struct{})

	s.mu.Lock()
	s.subjectID = subjectID
	s.state = StateSubscribing
	s.stop = stop
	s.mu.Unlock()

	cb := transport.Callbacks{
		OnStatus: func(status transport.Status) {
			if status != transport.StatusSubscribed {
				return
			}
			s.mu.Lock()
			if s.subjectID != subjectID || s.state != StateSubscribing {
				s.mu.Unlock()
				return
			}
			s.state = StateForeground
			ready := s.sess != nil
			s.mu.Unlock()
			if ready {
				s.announce(ctx)
			}
		},
		OnMembership: func(ev transport.MembershipEvent) {
			s.handleMembership(subjectID, ev)
		},
	}

	sess, err := s.sessions.Open(ctx, transport.PresenceTopic, cb)
	if err != nil {
		// Stay in Subscribing; the transport owns reconnection.
		s.mu.Lock()
		s.sess = sess
		s.mu.Unlock()
		go s.heartbeatLoop(stop)
		return nil
	}

	s.mu.Lock()
	s.sess = sess
	announceNow := s.state == StateForeground
	s.mu.Unlock()

	if announceNow {
		s.announce(ctx)
	}
	go s.heartbeatLoop(stop)
	return nil
}

// announce re-asserts liveness on the channel and, best effort, in the
// profile store. Only a foregrounded session announces; a heartbeat firing
// right after a background transition must not race a just-sent offline
// write back to online.
func (s *Store) announce(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateForeground || s.sess == nil {
		s.mu.Unlock()
		return
	}
	sess := s.sess
	p := transport.Presence{
		SubjectID:       s.subjectID,
		LastAnnouncedAt: s.now(),
		PlatformTag:     s.platformTag,
	}
	s.mu.Unlock()

	if err := sess.Channel().Track(ctx, p); err != nil {
		s.logger.WarnContext(ctx, "presence announce failed",
			xslog.SubjectID(p.SubjectID),
			xslog.Error(err),
		)
	}
	if err := s.profile.SetLiveness(ctx, p.SubjectID, true, p.LastAnnouncedAt); err != nil {
		s.logger.WarnContext(ctx, "liveness write failed",
			xslog.SubjectID(p.SubjectID),
			xslog.Error(err),
		)
	}
}

// withdraw untracks from the channel and records offline, both best effort.
func (s *Store) withdraw(ctx context.Context) {
	s.mu.Lock()
	sess := s.sess
	subjectID := s.subjectID
	s.mu.Unlock()

	if sess != nil {
		if err := sess.Channel().Untrack(ctx); err != nil {
			s.logger.WarnContext(ctx, "presence withdrawal failed",
				xslog.SubjectID(subjectID),
				xslog.Error(err),
			)
		}
	}
	if subjectID != "" {
		if err := s.profile.SetLiveness(ctx, subjectID, false, s.now()); err != nil {
			s.logger.WarnContext(ctx, "offline write failed",
				xslog.SubjectID(subjectID),
				xslog.Error(err),
			)
		}
	}
}

// Background handles visibility-hidden / app-backgrounded.
func (s *Store) Background(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateForeground {
		s.mu.Unlock()
		return
	}
	s.state = StateBackground
	s.mu.Unlock()

	s.withdraw(ctx)
}

// Foreground handles visibility-restored / app-foregrounded.
func (s *Store) Foreground(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateBackground {
		s.mu.Unlock()
		return
	}
	s.state = StateForeground
	s.mu.Unlock()

	s.announce(ctx)
}

// Terminate handles process exit: a final best-effort withdrawal, then full
// cleanup. Delivery of the withdrawal is not guaranteed and not awaited
// beyond the transport call itself.
func (s *Store) Terminate(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateUninitialized {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminating
	s.mu.Unlock()

	s.withdraw(ctx)
	s.Cleanup(ctx)
}

// Cleanup is idempotent: stops the heartbeat, withdraws, closes the
// session, clears the online set and resets to Uninitialized.
func (s *Store) Cleanup(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateUninitialized {
		s.mu.Unlock()
		return
	}
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if s.state == StateForeground {
		s.state = StateTerminating
	}
	s.mu.Unlock()

	s.withdraw(ctx)
	if err := s.sessions.Close(ctx, transport.PresenceTopic); err != nil {
		s.logger.WarnContext(ctx, "presence session close failed", xslog.Error(err))
	}

	s.mu.Lock()
	s.sess = nil
	s.subjectID = ""
	s.state = StateUninitialized
	changed := len(s.online) > 0
	s.online = make(map[string]time.Time)
	watchers, snapshot := s.watchersLocked()
	s.mu.Unlock()

	if changed {
		for _, w := range watchers {
			w(snapshot)
		}
	}
}

func (s *Store) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.announce(ctx)
			cancel()
		case <-stop:
			return
		}
	}
}

// handleMembership folds a membership event into the online set. It never
// propagates a failure: malformed records are dropped, never shown as
// phantom peers.
func (s *Store) handleMembership(subjectID string, ev transport.MembershipEvent) {
	s.mu.Lock()
	if s.subjectID != subjectID {
		// event from a session torn down during an identity switch
		s.mu.Unlock()
		return
	}

	switch ev.Kind {
	case transport.MembershipSync:
		s.online = make(map[string]time.Time, len(ev.Presences))
		for _, p := range ev.Presences {
			if p.SubjectID == "" {
				continue
			}
			s.online[p.SubjectID] = p.LastAnnouncedAt
		}
	case transport.MembershipJoin:
		for _, p := range ev.Presences {
			if p.SubjectID == "" {
				continue
			}
			s.online[p.SubjectID] = p.LastAnnouncedAt
		}
	case transport.MembershipLeave:
		for _, p := range ev.Presences {
			delete(s.online, p.SubjectID)
		}
	default:
		s.mu.Unlock()
		return
	}

	watchers, snapshot := s.watchersLocked()
	s.mu.Unlock()

	for _, w := range watchers {
		w(snapshot)
	}
}

func (s *Store) watchersLocked() ([]Watcher, map[string]time.Time) {
	watchers := make([]Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	return watchers, s.snapshotLocked()
}
