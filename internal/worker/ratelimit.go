package worker

import (
	"sync"
	"time"
)

// rateLimiter bounds job starts to max per sliding window, protecting the
// inference API from overload.
type rateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	starts []time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{max: max, window: window}
}

// reserve records a start if capacity allows and returns 0, otherwise
// returns how long until the oldest start falls out of the window.
func (l *rateLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.starts[:0]
	for _, t := range l.starts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.starts = kept

	if len(l.starts) < l.max {
		l.starts = append(l.starts, now)
		return 0
	}
	return l.starts[0].Add(l.window).Sub(now)
}

// wait blocks until a start slot is available or stop is closed. Returns
// false on stop.
func (l *rateLimiter) wait(stop <-chan struct{}) bool {
	for {
		delay := l.reserve()
		if delay <= 0 {
			return true
		}
		select {
		case <-stop:
			return false
		case <-time.After(delay):
		}
	}
}
