package session

import (
	"io"
	"log/slog"
	"testing"

	"github.com/vicinityhq/realtime/internal/transport"
	"github.com/vicinityhq/realtime/internal/transport/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenSubscribes(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := NewManager(memory.New(), testLogger())

	var statuses []transport.Status
	s, err := m.Open(ctx, "feed:u1", transport.Callbacks{
		OnStatus: func(st transport.Status) { statuses = append(statuses, st) },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := s.Status(); got != StatusSubscribed {
		t.Errorf("Status() = %v, want %v", got, StatusSubscribed)
	}
	if len(statuses) == 0 || statuses[0] != transport.StatusSubscribed {
		t.Errorf("statuses = %v, want leading subscribed", statuses)
	}
	if m.Active("feed:u1") != s {
		t.Error("Active() did not return the opened session")
	}
}

func TestReopenClosesOldBeforeNew(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	tr := memory.New()
	m := NewManager(tr, testLogger())

	var oldRows, newRows int
	old, err := m.Open(ctx, "feed:u1", transport.Callbacks{
		OnRow: func(transport.RowEvent) { oldRows++ },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	fresh, err := m.Open(ctx, "feed:u1", transport.Callbacks{
		OnRow: func(transport.RowEvent) { newRows++ },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if got := old.Status(); got != StatusClosed {
		t.Fatalf("old session Status() = %v, want %v", got, StatusClosed)
	}
	if got := fresh.Status(); got != StatusSubscribed {
		t.Fatalf("new session Status() = %v, want %v", got, StatusSubscribed)
	}

	// events must reach only the replacement handler
	pub := tr.Channel("feed:u1")
	if err := pub.Publish(ctx, transport.RowEvent{Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if oldRows != 0 {
		t.Errorf("old handler received %d rows after close, want 0", oldRows)
	}
	if newRows != 1 {
		t.Errorf("new handler received %d rows, want 1", newRows)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := NewManager(memory.New(), testLogger())

	if _, err := m.Open(ctx, "feed:u1", transport.Callbacks{}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := m.Close(ctx, "feed:u1"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(ctx, "feed:u1"); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if m.Active("feed:u1") != nil {
		t.Error("Active() returned a session after close")
	}
}

func TestCloseAll(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := NewManager(memory.New(), testLogger())

	a, _ := m.Open(ctx, "feed:u1", transport.Callbacks{})
	b, _ := m.Open(ctx, "presence:online", transport.Callbacks{})

	m.CloseAll(ctx)

	if got := a.Status(); got != StatusClosed {
		t.Errorf("session a Status() = %v, want closed", got)
	}
	if got := b.Status(); got != StatusClosed {
		t.Errorf("session b Status() = %v, want closed", got)
	}
	if m.Active("feed:u1") != nil || m.Active("presence:online") != nil {
		t.Error("Active() returned sessions after CloseAll")
	}
}
