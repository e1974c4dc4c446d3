// Package transport defines the publish/subscribe channel abstraction the
// presence and notification layers are built on. A Channel is a logical
// topic supporting membership (presence) events and row-change (feed)
// events. Implementations own their reconnect behavior; consumers only
// react to status callbacks.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed            = errors.New("transport: channel closed")
	ErrAlreadySubscribed = errors.New("transport: channel already subscribed")
)

// PresenceTopic is the fixed topic all clients announce themselves on.
const PresenceTopic = "presence:online"

// FeedTopic returns the per-subject notification feed topic.
func FeedTopic(subjectID string) string {
	return "feed:" + subjectID
}

// Presence is one announced member of a presence-enabled channel.
type Presence struct {
	SubjectID       string    `json:"subject_id"`
	LastAnnouncedAt time.Time `json:"last_announced_at"`
	PlatformTag     string    `json:"platform_tag"`
}

type MembershipKind string

const (
	// MembershipSync is an authoritative full snapshot; it replaces any
	// derived membership state wholesale.
	MembershipSync MembershipKind = "sync"
	// MembershipJoin and MembershipLeave are incremental patches between syncs.
	MembershipJoin  MembershipKind = "join"
	MembershipLeave MembershipKind = "leave"
)

type MembershipEvent struct {
	Kind      MembershipKind `json:"kind"`
	Presences []Presence     `json:"presences"`
}

// RowEvent is a row-insert delivered on a feed channel. Payload is the raw
// JSON row; consumers own decoding and malformed-payload policy.
type RowEvent struct {
	Payload []byte `json:"payload"`
}

type Status string

const (
	StatusSubscribed Status = "subscribed"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

// Callbacks are invoked by the transport's dispatch loop. All fields are
// optional. Handlers run to completion before the next event is dispatched
// on the same channel.
type Callbacks struct {
	OnStatus     func(Status)
	OnMembership func(MembershipEvent)
	OnRow        func(RowEvent)
}

// Channel is a single subscription handle to a topic. A handle subscribes
// at most once; reopening a topic means closing the old handle and creating
// a new one.
type Channel interface {
	Topic() string

	Subscribe(ctx context.Context, cb Callbacks) error

	// Track announces a presence on the channel. Calling it again for the
	// same subject refreshes the announcement.
	Track(ctx context.Context, p Presence) error

	// Untrack withdraws this handle's presence announcement.
	Untrack(ctx context.Context) error

	// Publish emits a row event to all subscribers of the topic.
	Publish(ctx context.Context, row RowEvent) error

	Close(ctx context.Context) error
}

type Transport interface {
	Channel(topic string) Channel
}
