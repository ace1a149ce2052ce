package orchestrator

import (
	"context"
	"math/rand/v2"
	"time"
)

// Lag is the inclusive delay range, in milliseconds, applied before each
// streamed text delta.
type Lag struct {
	Min int
	Max int
}

// Delay picks a uniformly random delay within the range.
func (l Lag) Delay(random func(n int64) int64) time.Duration {
	ms := l.Min
	if span := l.Max - l.Min; span > 0 {
		ms += int(random(int64(span) + 1))
	}
	return time.Duration(ms) * time.Millisecond
}

// lagFor resolves the request's pacing against the configured defaults.
// Values are clamped to [0, cap] and a reversed range is swapped.
func (o *Orchestrator) lagFor(req RunRequest) Lag {
	lag := Lag{Min: o.settings.LagMsMin, Max: o.settings.LagMsMax}
	if req.LagMsMin != nil {
		lag.Min = *req.LagMsMin
	}
	if req.LagMsMax != nil {
		lag.Max = *req.LagMsMax
	}
	lag.Min = clampMs(lag.Min, o.settings.LagMsCap)
	lag.Max = clampMs(lag.Max, o.settings.LagMsCap)
	if lag.Min > lag.Max {
		lag.Min, lag.Max = lag.Max, lag.Min
	}
	return lag
}

func clampMs(v, limit int) int {
	if v < 0 {
		return 0
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

func randomInt63n(n int64) int64 {
	return rand.Int64N(n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
