package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	prefsKeyPrefix    = "settings:prefs:"
	quietKeyPrefix    = "settings:quiet:"
	mutedKeyPrefix    = "settings:muted:"
	livenessKeyPrefix = "liveness:"
)

var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type livenessPayload struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

func (s *RedisStore) SetLiveness(ctx context.Context, subjectID string, online bool, at time.Time) error {
	data, err := go_json.Marshal(livenessPayload{Online: online, At: at})
	if err != nil {
		return fmt.Errorf("marshal liveness: %w", err)
	}
	if err := s.client.Set(ctx, livenessKeyPrefix+subjectID, data, 0).Err(); err != nil {
		return fmt.Errorf("set liveness: %w", err)
	}
	return nil
}

func (s *RedisStore) GetPreferences(ctx context.Context, subjectID string) (Preferences, error) {
	data, err := s.client.Get(ctx, prefsKeyPrefix+subjectID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	var p Preferences
	if err := go_json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("unmarshal preferences: %w", err)
	}
	return p, nil
}

func (s *RedisStore) GetQuietHours(ctx context.Context, subjectID string) (QuietHours, error) {
	data, err := s.client.Get(ctx, quietKeyPrefix+subjectID).Bytes()
	if errors.Is(err, redis.Nil) {
		return QuietHours{}, ErrNotFound
	}
	if err != nil {
		return QuietHours{}, fmt.Errorf("get quiet hours: %w", err)
	}

	var q QuietHours
	if err := go_json.Unmarshal(data, &q); err != nil {
		return QuietHours{}, fmt.Errorf("unmarshal quiet hours: %w", err)
	}
	return q, nil
}

func (s *RedisStore) GetMutedTopics(ctx context.Context, subjectID string) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, mutedKeyPrefix+subjectID).Result()
	if err != nil {
		return nil, fmt.Errorf("get muted topics: %w", err)
	}

	muted := make(map[string]struct{}, len(members))
	for _, topic := range members {
		muted[topic] = struct{}{}
	}
	return muted, nil
}
