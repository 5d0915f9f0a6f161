package main

import (
	"context"
	"time"

	"reviewbot/internal/conversation"
	"reviewbot/internal/ratelimiter"
)

// housekeeping drops expired in-memory conversation states and stale rate
// limiter windows every interval until ctx is done. Redis expires states on
// its own.
func (app *application) housekeeping(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.sweep()
		}
	}
}

func (app *application) sweep() {
	if mem, ok := app.states.(*conversation.MemoryStore); ok {
		if n := mem.Sweep(); n > 0 {
			app.logger.Debugw("expired conversation states removed", "count", n)
		}
	}
	if fw, ok := app.limiter.(*ratelimiter.FixedWindowRateLimiter); ok {
		if n := fw.Cleanup(); n > 0 {
			app.logger.Debugw("rate limiter windows removed", "count", n)
		}
	}
}
