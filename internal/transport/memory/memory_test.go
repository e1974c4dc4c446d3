package memory

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vicinityhq/realtime/internal/transport"
)

func collect(t *testing.T, ch transport.Channel) *[]transport.MembershipEvent {
	t.Helper()
	events := &[]transport.MembershipEvent{}
	err := ch.Subscribe(t.Context(), transport.Callbacks{
		OnMembership: func(ev transport.MembershipEvent) {
			*events = append(*events, ev)
		},
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	return events
}

func TestSubscribeDeliversSyncSnapshot(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	tr := New()

	announcer := tr.Channel("presence:online")
	p := transport.Presence{SubjectID: "u1", LastAnnouncedAt: time.Now(), PlatformTag: "web"}
	if err := announcer.Track(ctx, p); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	events := collect(t, tr.Channel("presence:online"))

	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1 sync", len(*events))
	}
	got := (*events)[0]
	if got.Kind != transport.MembershipSync {
		t.Fatalf("event kind = %v, want sync", got.Kind)
	}
	if diff := cmp.Diff([]transport.Presence{p}, got.Presences); diff != "" {
		t.Errorf("sync snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackAndUntrackBroadcast(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	tr := New()
	events := collect(t, tr.Channel("presence:online"))

	announcer := tr.Channel("presence:online")
	p := transport.Presence{SubjectID: "u2", LastAnnouncedAt: time.Now(), PlatformTag: "ios"}
	if err := announcer.Track(ctx, p); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := announcer.Untrack(ctx); err != nil {
		t.Fatalf("Untrack() error = %v", err)
	}

	kinds := make([]transport.MembershipKind, 0, len(*events))
	for _, ev := range *events {
		kinds = append(kinds, ev.Kind)
	}
	want := []transport.MembershipKind{
		transport.MembershipSync,
		transport.MembershipJoin,
		transport.MembershipLeave,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseWithdrawsPresence(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	tr := New()
	events := collect(t, tr.Channel("presence:online"))

	announcer := tr.Channel("presence:online")
	if err := announcer.Track(ctx, transport.Presence{SubjectID: "u3"}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := announcer.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	last := (*events)[len(*events)-1]
	if last.Kind != transport.MembershipLeave || last.Presences[0].SubjectID != "u3" {
		t.Errorf("last event = %+v, want leave for u3", last)
	}
}

func TestSubscribeTwiceFails(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	ch := New().Channel("feed:u1")

	if err := ch.Subscribe(ctx, transport.Callbacks{}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := ch.Subscribe(ctx, transport.Callbacks{}); err != transport.ErrAlreadySubscribed {
		t.Errorf("second Subscribe() error = %v, want ErrAlreadySubscribed", err)
	}
}

func TestClosedChannelRejectsOperations(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	ch := New().Channel("feed:u1")
	if err := ch.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := ch.Subscribe(ctx, transport.Callbacks{}); err != transport.ErrClosed {
		t.Errorf("Subscribe() after close error = %v, want ErrClosed", err)
	}
	if err := ch.Track(ctx, transport.Presence{SubjectID: "u1"}); err != transport.ErrClosed {
		t.Errorf("Track() after close error = %v, want ErrClosed", err)
	}
	if err := ch.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}
