package middleware

import (
	"net/http"
	"sync"
	"time"
)

type sender struct {
	count    int
	lastSeen time.Time
}

// RateLimiter caps requests per client IP inside a fixed window. Used on
// the message-ingress route so a single client cannot flood the compute
// queue.
type RateLimiter struct {
	mu      sync.Mutex
	senders map[string]*sender
	limit   int
	window  time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		senders: make(map[string]*sender),
		limit:   limit,
		window:  window,
	}

	// Cleanup goroutine
	go func() {
		for {
			time.Sleep(window)
			rl.mu.Lock()
			for ip, s := range rl.senders {
				if time.Since(s.lastSeen) > window {
					delete(rl.senders, ip)
				}
			}
			rl.mu.Unlock()
		}
	}()

	return rl
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr

		rl.mu.Lock()
		s, exists := rl.senders[ip]
		if !exists || time.Since(s.lastSeen) > rl.window {
			rl.senders[ip] = &sender{count: 1, lastSeen: time.Now()}
			rl.mu.Unlock()
			next.ServeHTTP(w, r)
			return
		}

		s.count++
		s.lastSeen = time.Now()
		count := s.count
		rl.mu.Unlock()

		if count > rl.limit {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}
