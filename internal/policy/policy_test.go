package policy

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vicinityhq/realtime/internal/store"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	midday := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	lateNight := time.Date(2026, time.March, 10, 23, 30, 0, 0, time.UTC)

	wrapping := store.QuietHours{Enabled: true, Start: "22:00", End: "06:00", Timezone: "UTC"}

	base := Context{
		MutedTopics:       map[string]struct{}{},
		GlobalPushEnabled: true,
		Now:               midday,
	}

	tests := []struct {
		name  string
		event Event
		ctx   func(Context) Context
		want  Verdict
	}{
		{
			name:  "clean message displays",
			event: Event{ID: "e1", Category: CategoryMessage, ThreadID: "T123"},
			ctx:   func(c Context) Context { return c },
			want:  Verdict{},
		},
		{
			name:  "active thread suppresses",
			event: Event{ID: "e1", Category: CategoryMessage, ThreadID: "T123"},
			ctx: func(c Context) Context {
				c.ActiveThreadID = "T123"
				return c
			},
			want: Verdict{Suppress: true, Reason: "active_thread"},
		},
		{
			name:  "active thread ignores non-message categories",
			event: Event{ID: "e1", Category: "deal", ThreadID: "T123"},
			ctx: func(c Context) Context {
				c.ActiveThreadID = "T123"
				return c
			},
			want: Verdict{},
		},
		{
			name:  "muted thread suppresses without being viewed",
			event: Event{ID: "e1", Category: CategoryMessage, ThreadID: "T9"},
			ctx: func(c Context) Context {
				c.MutedTopics = map[string]struct{}{"T9": {}}
				return c
			},
			want: Verdict{Suppress: true, Reason: "muted_topic"},
		},
		{
			name:  "mute does not apply to other threads",
			event: Event{ID: "e1", Category: CategoryMessage, ThreadID: "T123"},
			ctx: func(c Context) Context {
				c.MutedTopics = map[string]struct{}{"T9": {}}
				return c
			},
			want: Verdict{},
		},
		{
			name:  "active thread wins over mute in reason",
			event: Event{ID: "e1", Category: CategoryMessage, ThreadID: "T9"},
			ctx: func(c Context) Context {
				c.ActiveThreadID = "T9"
				c.MutedTopics = map[string]struct{}{"T9": {}}
				return c
			},
			want: Verdict{Suppress: true, Reason: "active_thread"},
		},
		{
			name:  "quiet hours suppress any category",
			event: Event{ID: "e1", Category: "deal"},
			ctx: func(c Context) Context {
				c.QuietHours = wrapping
				c.Now = lateNight
				return c
			},
			want: Verdict{Suppress: true, Reason: "quiet_hours"},
		},
		{
			name:  "outside quiet hours displays",
			event: Event{ID: "e1", Category: "deal"},
			ctx: func(c Context) Context {
				c.QuietHours = wrapping
				return c
			},
			want: Verdict{},
		},
		{
			name:  "broken quiet hours never suppress",
			event: Event{ID: "e1", Category: "deal"},
			ctx: func(c Context) Context {
				c.QuietHours = store.QuietHours{Enabled: true, Start: "22:00", End: "06:00", Timezone: "Mars/Olympus"}
				c.Now = lateNight
				return c
			},
			want: Verdict{},
		},
		{
			name:  "global toggle off suppresses",
			event: Event{ID: "e1", Category: CategoryMessage, ThreadID: "T123"},
			ctx: func(c Context) Context {
				c.GlobalPushEnabled = false
				return c
			},
			want: Verdict{Suppress: true, Reason: "global_disabled"},
		},
	}

	chain := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := chain.Evaluate(tt.event, tt.ctx(base))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChainStopsAtFirstVeto(t *testing.T) {
	t.Parallel()

	var calls []string
	record := func(name string, veto bool) Rule {
		return Rule{
			Name: name,
			Apply: func(Event, Context) bool {
				calls = append(calls, name)
				return veto
			},
		}
	}

	chain := NewChain(record("first", false), record("second", true), record("third", false))
	got := chain.Evaluate(Event{ID: "e1"}, Context{})

	if !got.Suppress || got.Reason != "second" {
		t.Fatalf("Evaluate() = %+v, want suppression by second", got)
	}
	if diff := cmp.Diff([]string{"first", "second"}, calls); diff != "" {
		t.Errorf("rule invocation order mismatch (-want +got):\n%s", diff)
	}
}
