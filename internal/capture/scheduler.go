package capture

import "time"

// Scheduler runs fn once at some later point, never before Schedule returns.
// The returned func cancels fn if it has not run yet.
type Scheduler interface {
	Schedule(fn func()) (cancel func())
}

// DefaultInterval is roughly one display frame.
const DefaultInterval = 33 * time.Millisecond

// TickerScheduler runs callbacks after a fixed interval.
type TickerScheduler struct {
	Interval time.Duration
}

func (s TickerScheduler) Schedule(fn func()) func() {
	d := s.Interval
	if d <= 0 {
		d = DefaultInterval
	}
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
