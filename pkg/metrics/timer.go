package metrics

import "time"

// ScopedTimer observes wall-clock duration into a Histogram via RAII: call
// NewScopedTimer at the top of the scope being measured, then Observe (or
// defer it) at the end.
type ScopedTimer struct {
	hist  *Histogram
	start time.Time
}

func NewScopedTimer(hist *Histogram) *ScopedTimer {
	return &ScopedTimer{hist: hist, start: time.Now()}
}

// Observe records the elapsed time since the timer was created. Every call
// records a new observation, so a second call double counts.
func (t *ScopedTimer) Observe() {
	t.hist.Observe(time.Since(t.start).Seconds())
}
