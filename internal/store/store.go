// Package store is the client's view of the durable profile store: liveness
// writes and per-user notification settings reads. Writes are best effort;
// reads feed the suppression policy through the prefs cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("store: not found")

type Preferences struct {
	GlobalPushEnabled bool            `json:"global_push_enabled"`
	CategoryToggles   map[string]bool `json:"category_toggles"`
}

// DefaultPreferences is what the evaluator falls back to when the store
// errors: the global toggle defaults to enabled so a store outage never
// silences alerts.
func DefaultPreferences() Preferences {
	return Preferences{GlobalPushEnabled: true}
}

// QuietHours is a daily local-time window. Start and End are "15:04" clock
// values interpreted in Timezone; the window wraps midnight when End < Start.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

const clockLayout = "15:04"

// Contains reports whether now falls inside the window. Disabled or
// malformed windows contain nothing.
func (q QuietHours) Contains(now time.Time) (bool, error) {
	if !q.Enabled {
		return false, nil
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", q.Timezone, err)
	}
	start, err := time.Parse(clockLayout, q.Start)
	if err != nil {
		return false, fmt.Errorf("parse quiet hours start %q: %w", q.Start, err)
	}
	end, err := time.Parse(clockLayout, q.End)
	if err != nil {
		return false, fmt.Errorf("parse quiet hours end %q: %w", q.End, err)
	}

	local := now.In(loc)
	minutes := local.Hour()*60 + local.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	if startMin <= endMin {
		return minutes >= startMin && minutes < endMin, nil
	}
	// window wraps midnight, e.g. 22:00-06:00
	return minutes >= startMin || minutes < endMin, nil
}

type Store interface {
	// SetLiveness records the subject's online/offline fact. Callers treat
	// failures as best effort.
	SetLiveness(ctx context.Context, subjectID string, online bool, at time.Time) error

	GetPreferences(ctx context.Context, subjectID string) (Preferences, error)

	GetQuietHours(ctx context.Context, subjectID string) (QuietHours, error)

	GetMutedTopics(ctx context.Context, subjectID string) (map[string]struct{}, error)
}
