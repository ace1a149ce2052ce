package browser

import "time"

// SetClock replaces the registry clock.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }
