package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SetLiveness(ctx context.Context, subjectID string, online bool, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profile_liveness (subject_id, online, last_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id) DO UPDATE
		SET online = EXCLUDED.online, last_seen_at = EXCLUDED.last_seen_at`,
		subjectID, online, at,
	)
	if err != nil {
		return fmt.Errorf("set liveness: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPreferences(ctx context.Context, subjectID string) (Preferences, error) {
	var (
		p       Preferences
		toggles []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT global_push_enabled, category_toggles
		FROM notification_preferences
		WHERE subject_id = $1`,
		subjectID,
	).Scan(&p.GlobalPushEnabled, &toggles)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	if len(toggles) > 0 {
		if err := go_json.Unmarshal(toggles, &p.CategoryToggles); err != nil {
			return Preferences{}, fmt.Errorf("unmarshal category toggles: %w", err)
		}
	}
	return p, nil
}

func (s *PostgresStore) GetQuietHours(ctx context.Context, subjectID string) (QuietHours, error) {
	var q QuietHours
	err := s.pool.QueryRow(ctx, `
		SELECT enabled, start_time, end_time, timezone
		FROM quiet_hours
		WHERE subject_id = $1`,
		subjectID,
	).Scan(&q.Enabled, &q.Start, &q.End, &q.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return QuietHours{}, ErrNotFound
	}
	if err != nil {
		return QuietHours{}, fmt.Errorf("get quiet hours: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) GetMutedTopics(ctx context.Context, subjectID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT topic_id
		FROM muted_topics
		WHERE subject_id = $1`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("get muted topics: %w", err)
	}
	defer rows.Close()

	muted := make(map[string]struct{})
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("scan muted topic: %w", err)
		}
		muted[topic] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate muted topics: %w", err)
	}
	return muted, nil
}
