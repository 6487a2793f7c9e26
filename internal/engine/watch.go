package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// MinWatchInterval is the shortest pause between two watch iterations.
const MinWatchInterval = time.Second

// Watch calls run, then waits interval (at least MinWatchInterval) on clock,
// until ctx is cancelled. An error from run is logged and the loop continues.
// Watch returns ctx.Err().
func Watch(ctx context.Context, clock clockwork.Clock, interval time.Duration, run func(context.Context) error) error {
	interval = max(interval, MinWatchInterval)

	for {
		if err := run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("sync failed", "error", err)
		}

		timer := clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}
	}
}
