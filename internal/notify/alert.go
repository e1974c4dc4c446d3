package notify

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/vicinityhq/realtime/internal/xslog"
)

// Alert is what the UI layer renders for a non-suppressed event.
type Alert struct {
	Title string
	Body  string
}

type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// AlerterFunc adapts a display callback to the Alerter interface.
type AlerterFunc func(ctx context.Context, a Alert)

func (f AlerterFunc) Alert(ctx context.Context, a Alert) { f(ctx, a) }

var _ Alerter = (*RateLimitedAlerter)(nil)

// RateLimitedAlerter bounds the visible alert rate so an event burst cannot
// flood the user. Dropped alerts are logged; their cache invalidations have
// already run by the time the limiter is consulted.
type RateLimitedAlerter struct {
	next    Alerter
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewRateLimitedAlerter(next Alerter, perSec float64, burst int, logger *slog.Logger) *RateLimitedAlerter {
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedAlerter{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
		logger:  logger,
	}
}

func (a *RateLimitedAlerter) Alert(ctx context.Context, alert Alert) {
	if !a.limiter.Allow() {
		a.logger.WarnContext(ctx, "alert dropped by flood control",
			xslog.Data(alert.Title),
		)
		return
	}
	a.next.Alert(ctx, alert)
}
