package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/jensabrahamsson/overblick/internal/agentic"
)

// Runner drives one agentic Loop on a fixed interval. A tick in progress is
// never interrupted: cancellation is observed between ticks, so the current
// cycle completes, persists its outcome, and only then does the runner
// return.
type Runner struct {
	identity string
	loop     *agentic.Loop
	interval time.Duration
}

// NewRunner wraps loop. interval<=0 defaults to one minute.
func NewRunner(identity string, loop *agentic.Loop, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{identity: identity, loop: loop, interval: interval}
}

// Run ticks until ctx is cancelled. The first tick fires immediately.
func (r *Runner) Run(ctx context.Context) {
	slog.Info("agent runner started", "identity", r.identity, "interval", r.interval)

	for {
		tick := r.loop.Tick(ctx)
		if tick != nil {
			slog.Info("tick complete",
				"identity", r.identity,
				"tick", tick.TickNumber,
				"planned", tick.ActionsPlanned,
				"executed", tick.ActionsExecuted,
				"succeeded", tick.ActionsSucceeded,
				"duration_ms", tick.DurationMs)
		}

		select {
		case <-ctx.Done():
			slog.Info("agent runner stopping", "identity", r.identity)
			return
		case <-time.After(r.interval):
		}
	}
}
