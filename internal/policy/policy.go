// Package policy decides whether a notification event is surfaced. Rules
// are evaluated in a fixed order and the first rule that vetoes wins; an
// event no rule vetoes is displayed. Evaluation is pure: everything it may
// consult arrives in the Context snapshot.
package policy

import (
	"time"

	"github.com/vicinityhq/realtime/internal/store"
)

const CategoryMessage = "message"

// Event is the evaluator's view of a notification event.
type Event struct {
	ID       string
	Category string
	ThreadID string
}

// Context is a read-only snapshot assembled per event from session state
// and the preference cache.
type Context struct {
	ActiveThreadID    string
	MutedTopics       map[string]struct{}
	QuietHours        store.QuietHours
	GlobalPushEnabled bool
	Now               time.Time
}

type Verdict struct {
	Suppress bool
	Reason   string
}

var display = Verdict{}

func suppress(reason string) Verdict {
	return Verdict{Suppress: true, Reason: reason}
}

// Rule vetoes an event or passes. Rules are independent; order is the
// chain's concern.
type Rule struct {
	Name  string
	Apply func(Event, Context) bool
}

type Chain struct {
	rules []Rule
}

func NewChain(rules ...Rule) Chain {
	return Chain{rules: rules}
}

// Default is the canonical rule order. The duplicate check is not a rule
// here; it runs first in the coordinator against the dedup cache before
// evaluation is ever reached.
func Default() Chain {
	return NewChain(
		ActiveThread(),
		MutedTopic(),
		QuietHours(),
		GlobalToggle(),
	)
}

func (c Chain) Evaluate(ev Event, ctx Context) Verdict {
	for _, rule := range c.rules {
		if rule.Apply(ev, ctx) {
			return suppress(rule.Name)
		}
	}
	return display
}

// ActiveThread vetoes message events for the thread the user is currently
// viewing; the content is already on screen.
func ActiveThread() Rule {
	return Rule{
		Name: "active_thread",
		Apply: func(ev Event, ctx Context) bool {
			return ev.Category == CategoryMessage &&
				ev.ThreadID != "" &&
				ev.ThreadID == ctx.ActiveThreadID
		},
	}
}

// MutedTopic vetoes message events for threads on the mute list.
func MutedTopic() Rule {
	return Rule{
		Name: "muted_topic",
		Apply: func(ev Event, ctx Context) bool {
			if ev.Category != CategoryMessage || ev.ThreadID == "" {
				return false
			}
			_, muted := ctx.MutedTopics[ev.ThreadID]
			return muted
		},
	}
}

// QuietHours vetoes any event inside the configured window. A window that
// fails to evaluate (bad timezone, bad clock value) does not apply; an
// error must never suppress.
func QuietHours() Rule {
	return Rule{
		Name: "quiet_hours",
		Apply: func(_ Event, ctx Context) bool {
			inside, err := ctx.QuietHours.Contains(ctx.Now)
			if err != nil {
				return false
			}
			return inside
		},
	}
}

// GlobalToggle vetoes everything when the user's global alert preference
// is off.
func GlobalToggle() Rule {
	return Rule{
		Name: "global_disabled",
		Apply: func(_ Event, ctx Context) bool {
			return !ctx.GlobalPushEnabled
		},
	}
}
