// Package session owns channel subscriptions, one live session per topic.
// Its single job is sequencing: an old session is driven to Closed before a
// replacement may begin subscribing, so a stale handler can never fire after
// its successor is installed.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vicinityhq/realtime/internal/transport"
	"github.com/vicinityhq/realtime/internal/xslog"
)

type Status string

const (
	StatusIdle        Status = "idle"
	StatusSubscribing Status = "subscribing"
	StatusSubscribed  Status = "subscribed"
	StatusClosed      Status = "closed"
)

type Session struct {
	topic string

	mu     sync.Mutex
	ch     transport.Channel
	status Status
}

func (s *Session) Topic() string { return s.topic }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Channel returns the underlying transport handle for track/untrack calls.
func (s *Session) Channel() transport.Channel {
	return s.ch
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusClosed
	ch := s.ch
	s.mu.Unlock()

	return ch.Close(ctx)
}

type Manager struct {
	transport transport.Transport
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]*Session
}

func NewManager(t transport.Transport, logger *slog.Logger) *Manager {
	return &Manager{
		transport: t,
		logger:    logger,
		active:    make(map[string]*Session),
	}
}

// Open subscribes a new session for topic. Any prior non-Closed session for
// the topic is closed first; the close completes before the new subscribe
// starts. A subscribe error leaves the session in Subscribing; recovery is
// the transport's reconnect behavior, not ours.
func (m *Manager) Open(ctx context.Context, topic string, cb transport.Callbacks) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.active[topic]; ok {
		if err := old.Close(ctx); err != nil {
			m.logger.WarnContext(ctx, "failed to close prior session",
				xslog.Topic(topic),
				xslog.Error(err),
			)
		}
		delete(m.active, topic)
	}

	s := &Session{
		topic:  topic,
		ch:     m.transport.Channel(topic),
		status: StatusSubscribing,
	}
	m.active[topic] = s

	wrapped := cb
	wrapped.OnStatus = func(status transport.Status) {
		switch status {
		case transport.StatusSubscribed:
			s.setStatus(StatusSubscribed)
		case transport.StatusClosed:
			s.setStatus(StatusClosed)
		}
		if cb.OnStatus != nil {
			cb.OnStatus(status)
		}
	}

	if err := s.ch.Subscribe(ctx, wrapped); err != nil {
		m.logger.WarnContext(ctx, "subscribe failed, session stays in subscribing",
			xslog.Topic(topic),
			xslog.Error(err),
		)
		return s, err
	}
	return s, nil
}

// Active returns the current session for topic, or nil.
func (m *Manager) Active(topic string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[topic]
}

func (m *Manager) Close(ctx context.Context, topic string) error {
	m.mu.Lock()
	s, ok := m.active[topic]
	if ok {
		delete(m.active, topic)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close(ctx)
}

func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	m.active = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			m.logger.WarnContext(ctx, "failed to close session",
				xslog.Topic(s.Topic()),
				xslog.Error(err),
			)
		}
	}
}
