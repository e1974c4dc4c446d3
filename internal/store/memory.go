package store

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore backs tests and infrastructure-free daemon runs. Seed* methods
// stand in for the settings screens the real store sits behind.
type MemoryStore struct {
	mu       sync.RWMutex
	prefs    map[string]Preferences
	quiet    map[string]QuietHours
	muted    map[string]map[string]struct{}
	liveness map[string]LivenessRecord
}

type LivenessRecord struct {
	Online bool
	At     time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prefs:    make(map[string]Preferences),
		quiet:    make(map[string]QuietHours),
		muted:    make(map[string]map[string]struct{}),
		liveness: make(map[string]LivenessRecord),
	}
}

func (s *MemoryStore) SetLiveness(_ context.Context, subjectID string, online bool, at time.Time) error {
	s.mu.Lock()
	s.liveness[subjectID] = LivenessRecord{Online: online, At: at}
	s.mu.Unlock()
	return nil
}

// Liveness returns the last recorded liveness fact, for tests.
func (s *MemoryStore) Liveness(subjectID string) (LivenessRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.liveness[subjectID]
	return rec, ok
}

func (s *MemoryStore) GetPreferences(_ context.Context, subjectID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[subjectID]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetQuietHours(_ context.Context, subjectID string) (QuietHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quiet[subjectID]
	if !ok {
		return QuietHours{}, ErrNotFound
	}
	return q, nil
}

func (s *MemoryStore) GetMutedTopics(_ context.Context, subjectID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	muted, ok := s.muted[subjectID]
	if !ok {
		return map[string]struct{}{}, nil
	}
	out := make(map[string]struct{}, len(muted))
	for topic := range muted {
		out[topic] = struct{}{}
	}
	return out, nil
}

func (s *MemoryStore) SeedPreferences(subjectID string, p Preferences) {
	s.mu.Lock()
	s.prefs[subjectID] = p
	s.mu.Unlock()
}

func (s *MemoryStore) SeedQuietHours(subjectID string, q QuietHours) {
	s.mu.Lock()
	s.quiet[subjectID] = q
	s.mu.Unlock()
}

func (s *MemoryStore) SeedMutedTopics(subjectID string, topics ...string) {
	s.mu.Lock()
	m := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		m[topic] = struct{}{}
	}
	s.muted[subjectID] = m
	s.mu.Unlock()
}
