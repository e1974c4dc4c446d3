package notify

import (
	"context"
	"log/slog"
	"time"

	go_json "github.com/goccy/go-json"

	"github.com/vicinityhq/realtime/internal/xslog"
)

// Event is a notification row from the per-user feed. Identity is ID: two
// deliveries with the same ID are the same logical event.
type Event struct {
	ID        string       `json:"id"`
	Category  string       `json:"category"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	CreatedAt time.Time    `json:"created_at"`
	Context   EventContext `json:"context_data"`
}

type EventContext struct {
	ThreadID string `json:"thread_id"`
}

type rawEvent struct {
	ID          string             `json:"id"`
	Category    string             `json:"category"`
	Title       string             `json:"title"`
	Body        string             `json:"body"`
	CreatedAt   time.Time          `json:"created_at"`
	ContextData go_json.RawMessage `json:"context_data"`
}

// decodeEvent fails open: an unparseable payload or context still yields an
// event (with whatever fields survived) rather than a dropped alert. Only
// the ID decides deduplicability, and an empty ID means none.
func decodeEvent(ctx context.Context, payload []byte, logger *slog.Logger) Event {
	var raw rawEvent
	if err := go_json.Unmarshal(payload, &raw); err != nil {
		logger.WarnContext(ctx, "malformed notification payload, treating as non-deduplicable",
			xslog.Error(err),
			xslog.Data(string(payload)),
		)
		return Event{}
	}

	ev := Event{
		ID:        raw.ID,
		Category:  raw.Category,
		Title:     raw.Title,
		Body:      raw.Body,
		CreatedAt: raw.CreatedAt,
	}
	if len(raw.ContextData) > 0 {
		if err := go_json.Unmarshal(raw.ContextData, &ev.Context); err != nil {
			logger.WarnContext(ctx, "unparseable context data, thread rules will not apply",
				xslog.EventID(raw.ID),
				xslog.Error(err),
			)
		}
	}
	return ev
}
