package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	go_json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vicinityhq/realtime/internal/migrations"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the local/dev profile store backend. Opening applies any
// pending schema migrations.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SetLiveness(ctx context.Context, subjectID string, online bool, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_liveness (subject_id, online, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE
		SET online = excluded.online, last_seen_at = excluded.last_seen_at`,
		subjectID, online, at,
	)
	if err != nil {
		return fmt.Errorf("set liveness: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPreferences(ctx context.Context, subjectID string) (Preferences, error) {
	var (
		p       Preferences
		toggles sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT global_push_enabled, category_toggles
		FROM notification_preferences
		WHERE subject_id = ?`,
		subjectID,
	).Scan(&p.GlobalPushEnabled, &toggles)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	if toggles.Valid && toggles.String != "" {
		if err := go_json.Unmarshal([]byte(toggles.String), &p.CategoryToggles); err != nil {
			return Preferences{}, fmt.Errorf("unmarshal category toggles: %w", err)
		}
	}
	return p, nil
}

func (s *SQLiteStore) GetQuietHours(ctx context.Context, subjectID string) (QuietHours, error) {
	var q QuietHours
	err := s.db.QueryRowContext(ctx, `
		SELECT enabled, start_time, end_time, timezone
		FROM quiet_hours
		WHERE subject_id = ?`,
		subjectID,
	).Scan(&q.Enabled, &q.Start, &q.End, &q.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return QuietHours{}, ErrNotFound
	}
	if err != nil {
		return QuietHours{}, fmt.Errorf("get quiet hours: %w", err)
	}
	return q, nil
}

func (s *SQLiteStore) GetMutedTopics(ctx context.Context, subjectID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic_id
		FROM muted_topics
		WHERE subject_id = ?`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("get muted topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
