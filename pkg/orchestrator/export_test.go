package orchestrator

import (
	"context"
	"time"
)

// SetPacing replaces the sleep and random source used for text pacing.
func SetPacing(o *Orchestrator, sleep func(ctx context.Context, d time.Duration) error, random func(n int64) int64) {
	o.sleep = sleep
	o.random = random
}

// LagFor exposes request pacing resolution.
func LagFor(o *Orchestrator, req RunRequest) Lag {
	return o.lagFor(req)
}
