package presence

import (
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vicinityhq/realtime/internal/session"
	"github.com/vicinityhq/realtime/internal/store"
	"github.com/vicinityhq/realtime/internal/transport"
	"github.com/vicinityhq/realtime/internal/transport/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *memory.Transport, *store.MemoryStore) {
	t.Helper()
	tr := memory.New()
	profile := store.NewMemoryStore()
	s := NewStore(
		session.NewManager(tr, testLogger()),
		profile,
		Config{HeartbeatPeriod: time.Hour, PlatformTag: "test"},
		testLogger(),
	)
	t.Cleanup(func() { s.Cleanup(t.Context()) })
	return s, tr, profile
}

func onlineIDs(s *Store) []string {
	snapshot := s.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func TestInitializeAnnounces(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, _, profile := newTestStore(t)

	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := s.State(); got != StateForeground {
		t.Fatalf("State() = %v, want %v", got, StateForeground)
	}
	if diff := cmp.Diff([]string{"u1"}, onlineIDs(s)); diff != "" {
		t.Errorf("online set mismatch (-want +got):\n%s", diff)
	}
	rec, ok := profile.Liveness("u1")
	if !ok || !rec.Online {
		t.Errorf("liveness = %+v, %v; want online write", rec, ok)
	}
}

func TestInitializeSameSubjectIsNoop(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, _, _ := newTestStore(t)

	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if got := s.State(); got != StateForeground {
		t.Errorf("State() = %v, want %v", got, StateForeground)
	}
}

func TestSyncReplacesJoinAndLeavePatch(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, _, _ := newTestStore(t)
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	at := time.Now()
	s.handleMembership("u1", transport.MembershipEvent{
		Kind: transport.MembershipSync,
		Presences: []transport.Presence{
			{SubjectID: "A", LastAnnouncedAt: at},
			{SubjectID: "B", LastAnnouncedAt: at},
		},
	})
	s.handleMembership("u1", transport.MembershipEvent{
		Kind:      transport.MembershipJoin,
		Presences: []transport.Presence{{SubjectID: "C", LastAnnouncedAt: at}},
	})
	s.handleMembership("u1", transport.MembershipEvent{
		Kind:      transport.MembershipLeave,
		Presences: []transport.Presence{{SubjectID: "A", LastAnnouncedAt: at}},
	})

	if diff := cmp.Diff([]string{"B", "C"}, onlineIDs(s)); diff != "" {
		t.Errorf("online set mismatch (-want +got):\n%s", diff)
	}
}

func TestMalformedPresenceIsDropped(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, _, _ := newTestStore(t)
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	s.handleMembership("u1", transport.MembershipEvent{
		Kind: transport.MembershipSync,
		Presences: []transport.Presence{
			{SubjectID: ""}, // no phantom peers
			{SubjectID: "B", LastAnnouncedAt: time.Now()},
		},
	})

	if diff := cmp.Diff([]string{"B"}, onlineIDs(s)); diff != "" {
		t.Errorf("online set mismatch (-want +got):\n%s", diff)
	}
}

func TestBackgroundWithdrawsAndBlocksHeartbeat(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, _, profile := newTestStore(t)
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	s.Background(ctx)
	if got := s.State(); got != StateBackground {
		t.Fatalf("State() = %v, want %v", got, StateBackground)
	}
	if ids := onlineIDs(s); len(ids) != 0 {
		t.Fatalf("online set after background = %v, want empty", ids)
	}
	rec, _ := profile.Liveness("u1")
	if rec.Online {
		t.Error("liveness still online after background")
	}

	// a heartbeat firing after the transition must not re-announce
	s.announce(ctx)
	if ids := onlineIDs(s); len(ids) != 0 {
		t.Errorf("online set after backgrounded heartbeat = %v, want empty", ids)
	}

	s.Foreground(ctx)
	if diff := cmp.Diff([]string{"u1"}, onlineIDs(s)); diff != "" {
		t.Errorf("online set after foreground (-want +got):\n%s", diff)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, _, profile := newTestStore(t)
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	s.Cleanup(ctx)
	s.Cleanup(ctx)

	if got := s.State(); got != StateUninitialized {
		t.Errorf("State() = %v, want %v", got, StateUninitialized)
	}
	if ids := onlineIDs(s); len(ids) != 0 {
		t.Errorf("online set after cleanup = %v, want empty", ids)
	}
	rec, _ := profile.Liveness("u1")
	if rec.Online {
		t.Error("liveness still online after cleanup")
	}
}

func TestSubjectSwitchReplacesSession(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, _, _ := newTestStore(t)
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := s.Initialize(ctx, "u2"); err != nil {
		t.Fatalf("Initialize(u2) error = %v", err)
	}

	if got := s.State(); got != StateForeground {
		t.Fatalf("State() = %v, want %v", got, StateForeground)
	}
	if diff := cmp.Diff([]string{"u2"}, onlineIDs(s)); diff != "" {
		t.Errorf("online set mismatch (-want +got):\n%s", diff)
	}
}

func TestWatcherSeesChanges(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, tr, _ := newTestStore(t)
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	var last map[string]time.Time
	var calls int
	unwatch := s.Watch(func(online map[string]time.Time) {
		last = online
		calls++
	})

	peer := tr.Channel(transport.PresenceTopic)
	if err := peer.Track(ctx, transport.Presence{SubjectID: "u9", LastAnnouncedAt: time.Now()}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("watcher ran %d times, want 1", calls)
	}
	if _, ok := last["u9"]; !ok {
		t.Errorf("watcher snapshot missing u9: %v", last)
	}

	unwatch()
	if err := peer.Untrack(ctx); err != nil {
		t.Fatalf("Untrack() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("watcher ran %d times after unwatch, want still 1", calls)
	}
}
