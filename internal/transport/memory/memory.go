// Package memory provides an in-process transport. It keeps full membership
// state per topic and delivers callbacks synchronously, which makes it the
// backend for tests and for running the daemon without infrastructure.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vicinityhq/realtime/internal/transport"
)

var _ transport.Transport = (*Transport)(nil)

type Transport struct {
	mu     sync.Mutex
	topics map[string]*topicState
}

type topicState struct {
	members map[string]transport.Presence
	subs    map[string]*Channel
}

func New() *Transport {
	return &Transport{
		topics: make(map[string]*topicState),
	}
}

func (t *Transport) Channel(topic string) transport.Channel {
	return &Channel{
		t:     t,
		topic: topic,
		id:    uuid.NewString(),
	}
}

func (t *Transport) topicLocked(topic string) *topicState {
	ts, ok := t.topics[topic]
	if !ok {
		ts = &topicState{
			members: make(map[string]transport.Presence),
			subs:    make(map[string]*Channel),
		}
		t.topics[topic] = ts
	}
	return ts
}

var _ transport.Channel = (*Channel)(nil)

type Channel struct {
	t     *Transport
	topic string
	id    string

	cb         transport.Callbacks
	subscribed bool
	closed     bool
	tracked    string
}

func (c *Channel) Topic() string { return c.topic }

func (c *Channel) Subscribe(_ context.Context, cb transport.Callbacks) error {
	c.t.mu.Lock()
	if c.closed {
		c.t.mu.Unlock()
		return transport.ErrClosed
	}
	if c.subscribed {
		c.t.mu.Unlock()
		return transport.ErrAlreadySubscribed
	}
	c.subscribed = true
	c.cb = cb

	ts := c.t.topicLocked(c.topic)
	ts.subs[c.id] = c
	snapshot := make([]transport.Presence, 0, len(ts.members))
	for _, p := range ts.members {
		snapshot = append(snapshot, p)
	}
	c.t.mu.Unlock()

	if cb.OnStatus != nil {
		cb.OnStatus(transport.StatusSubscribed)
	}
	if cb.OnMembership != nil {
		cb.OnMembership(transport.MembershipEvent{
			Kind:      transport.MembershipSync,
			Presences: snapshot,
		})
	}
	return nil
}

func (c *Channel) Track(_ context.Context, p transport.Presence) error {
	c.t.mu.Lock()
	if c.closed {
		c.t.mu.Unlock()
		return transport.ErrClosed
	}
	ts := c.t.topicLocked(c.topic)
	ts.members[p.SubjectID] = p
	c.tracked = p.SubjectID
	cbs := membershipCallbacksLocked(ts)
	c.t.mu.Unlock()

	dispatchMembership(cbs, transport.MembershipEvent{
		Kind:      transport.MembershipJoin,
		Presences: []transport.Presence{p},
	})
	return nil
}

func (c *Channel) Untrack(_ context.Context) error {
	c.t.mu.Lock()
	if c.closed {
		c.t.mu.Unlock()
		return transport.ErrClosed
	}
	subjectID := c.tracked
	if subjectID == "" {
		c.t.mu.Unlock()
		return nil
	}
	c.tracked = ""
	ts := c.t.topicLocked(c.topic)
	left, ok := ts.members[subjectID]
	if ok {
		delete(ts.members, subjectID)
	}
	cbs := membershipCallbacksLocked(ts)
	c.t.mu.Unlock()

	if ok {
		dispatchMembership(cbs, transport.MembershipEvent{
			Kind:      transport.MembershipLeave,
			Presences: []transport.Presence{left},
		})
	}
	return nil
}

func (c *Channel) Publish(_ context.Context, row transport.RowEvent) error {
	c.t.mu.Lock()
	if c.closed {
		c.t.mu.Unlock()
		return transport.ErrClosed
	}
	ts := c.t.topicLocked(c.topic)
	cbs := make([]func(transport.RowEvent), 0, len(ts.subs))
	for _, sub := range ts.subs {
		if sub.cb.OnRow != nil {
			cbs = append(cbs, sub.cb.OnRow)
		}
	}
	c.t.mu.Unlock()

	for _, cb := range cbs {
		cb(row)
	}
	return nil
}

func (c *Channel) Close(_ context.Context) error {
	c.t.mu.Lock()
	if c.closed {
		c.t.mu.Unlock()
		return nil
	}
	c.closed = true
	subjectID := c.tracked
	c.tracked = ""

	ts := c.t.topicLocked(c.topic)
	delete(ts.subs, c.id)

	var left transport.Presence
	var hadPresence bool
	if subjectID != "" {
		left, hadPresence = ts.members[subjectID]
		if hadPresence {
			delete(ts.members, subjectID)
		}
	}
	cbs := membershipCallbacksLocked(ts)
	onStatus := c.cb.OnStatus
	wasSubscribed := c.subscribed
	c.t.mu.Unlock()

	if hadPresence {
		dispatchMembership(cbs, transport.MembershipEvent{
			Kind:      transport.MembershipLeave,
			Presences: []transport.Presence{left},
		})
	}
	if wasSubscribed && onStatus != nil {
		onStatus(transport.StatusClosed)
	}
	return nil
}

func membershipCallbacksLocked(ts *topicState) []func(transport.MembershipEvent) {
	cbs := make([]func(transport.MembershipEvent), 0, len(ts.subs))
	for _, sub := range ts.subs {
		if sub.cb.OnMembership != nil {
			cbs = append(cbs, sub.cb.OnMembership)
		}
	}
	return cbs
}

func dispatchMembership(cbs []func(transport.MembershipEvent), ev transport.MembershipEvent) {
	for _, cb := range cbs {
		cb(ev)
	}
}
