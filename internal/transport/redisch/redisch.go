// Package redisch implements the channel transport on Redis: membership
// state lives in a per-topic hash, membership deltas and row events travel
// over pub/sub. Reconnection is go-redis's concern; this layer only reports
// status transitions.
package redisch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	go_json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/vicinityhq/realtime/internal/transport"
	"github.com/vicinityhq/realtime/internal/xslog"
)

const (
	membersKeyPrefix    = "members:"
	membershipKeyPrefix = "membership:"
	rowsKeyPrefix       = "rows:"
)

var _ transport.Transport = (*Transport)(nil)

type Transport struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Transport {
	return &Transport{
		client: client,
		logger: logger,
	}
}

func (t *Transport) Channel(topic string) transport.Channel {
	return &Channel{
		client: t.client,
		logger: t.logger,
		topic:  topic,
	}
}

var _ transport.Channel = (*Channel)(nil)

type Channel struct {
	client *redis.Client
	logger *slog.Logger
	topic  string

	mu         sync.Mutex
	pubsub     *redis.PubSub
	cb         transport.Callbacks
	subscribed bool
	closed     bool
	tracked    *transport.Presence
}

func (c *Channel) Topic() string { return c.topic }

func (c *Channel) membersKey() string    { return membersKeyPrefix + c.topic }
func (c *Channel) membershipKey() string { return membershipKeyPrefix + c.topic }
func (c *Channel) rowsKey() string       { return rowsKeyPrefix + c.topic }

func (c *Channel) Subscribe(ctx context.Context, cb transport.Callbacks) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	if c.subscribed {
		c.mu.Unlock()
		return transport.ErrAlreadySubscribed
	}

	pubsub := c.client.Subscribe(ctx, c.membershipKey(), c.rowsKey())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}
	c.pubsub = pubsub
	c.cb = cb
	c.subscribed = true
	c.mu.Unlock()

	if cb.OnStatus != nil {
		cb.OnStatus(transport.StatusSubscribed)
	}

	snapshot, err := c.readMembers(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read membership snapshot",
			xslog.Topic(c.topic),
			xslog.Error(err),
		)
		snapshot = nil
	}
	if cb.OnMembership != nil {
		cb.OnMembership(transport.MembershipEvent{
			Kind:      transport.MembershipSync,
			Presences: snapshot,
		})
	}

	go c.dispatchLoop(pubsub, cb)
	return nil
}

// dispatchLoop delivers pub/sub messages one at a time. Handlers run to
// completion before the next message is processed.
func (c *Channel) dispatchLoop(pubsub *redis.PubSub, cb transport.Callbacks) {
	for msg := range pubsub.Channel() {
		switch msg.Channel {
		case c.membershipKey():
			var ev transport.MembershipEvent
			if err := go_json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.logger.Warn("dropping malformed membership event",
					xslog.Topic(c.topic),
					xslog.Error(err),
				)
				continue
			}
			if cb.OnMembership != nil {
				cb.OnMembership(ev)
			}
		case c.rowsKey():
			if cb.OnRow != nil {
				cb.OnRow(transport.RowEvent{Payload: []byte(msg.Payload)})
			}
		}
	}
}

func (c *Channel) readMembers(ctx context.Context) ([]transport.Presence, error) {
	fields, err := c.client.HGetAll(ctx, c.membersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read members %s: %w", c.topic, err)
	}

	presences := make([]transport.Presence, 0, len(fields))
	for subjectID, data := range fields {
		var p transport.Presence
		if err := go_json.Unmarshal([]byte(data), &p); err != nil {
			c.logger.WarnContext(ctx, "dropping malformed presence record",
				xslog.Topic(c.topic),
				xslog.SubjectID(subjectID),
				xslog.Error(err),
			)
			continue
		}
		presences = append(presences, p)
	}
	return presences, nil
}

func (c *Channel) Track(ctx context.Context, p transport.Presence) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.tracked = &p
	c.mu.Unlock()

	data, err := go_json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := c.client.HSet(ctx, c.membersKey(), p.SubjectID, string(data)).Err(); err != nil {
		return fmt.Errorf("track %s: %w", c.topic, err)
	}
	return c.publishMembership(ctx, transport.MembershipEvent{
		Kind:      transport.MembershipJoin,
		Presences: []transport.Presence{p},
	})
}

func (c *Channel) Untrack(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	tracked := c.tracked
	c.tracked = nil
	c.mu.Unlock()

	if tracked == nil {
		return nil
	}
	if err := c.client.HDel(ctx, c.membersKey(), tracked.SubjectID).Err(); err != nil {
		return fmt.Errorf("untrack %s: %w", c.topic, err)
	}
	return c.publishMembership(ctx, transport.MembershipEvent{
		Kind:      transport.MembershipLeave,
		Presences: []transport.Presence{*tracked},
	})
}

func (c *Channel) publishMembership(ctx context.Context, ev transport.MembershipEvent) error {
	data, err := go_json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal membership event: %w", err)
	}
	if err := c.client.Publish(ctx, c.membershipKey(), string(data)).Err(); err != nil {
		return fmt.Errorf("publish membership %s: %w", c.topic, err)
	}
	return nil
}

func (c *Channel) Publish(ctx context.Context, row transport.RowEvent) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.mu.Unlock()

	if err := c.client.Publish(ctx, c.rowsKey(), string(row.Payload)).Err(); err != nil {
		return fmt.Errorf("publish row %s: %w", c.topic, err)
	}
	return nil
}

func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pubsub := c.pubsub
	onStatus := c.cb.OnStatus
	wasSubscribed := c.subscribed
	tracked := c.tracked
	c.tracked = nil
	c.mu.Unlock()

	// Withdrawal is best effort; process exit must not block on it.
	if tracked != nil {
		if err := c.client.HDel(ctx, c.membersKey(), tracked.SubjectID).Err(); err != nil {
			c.logger.WarnContext(ctx, "failed to withdraw presence on close",
				xslog.Topic(c.topic),
				xslog.SubjectID(tracked.SubjectID),
				xslog.Error(err),
			)
		} else if err := c.publishMembership(ctx, transport.MembershipEvent{
			Kind:      transport.MembershipLeave,
			Presences: []transport.Presence{*tracked},
		}); err != nil {
			c.logger.WarnContext(ctx, "failed to publish leave on close",
				xslog.Topic(c.topic),
				xslog.Error(err),
			)
		}
	}

	if pubsub != nil {
		_ = pubsub.Close()
	}
	if wasSubscribed && onStatus != nil {
		onStatus(transport.StatusClosed)
	}
	return nil
}
