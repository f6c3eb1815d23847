package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces outbound calls to one backend. It is a token bucket
// sized to a minute of quota; a fresh limiter starts full so short runs are
// not throttled. Concurrent book runs sharing a backend share its limiter.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	tokens   float64
	last     time.Time
}

// NewRateLimiter returns a limiter allowing requestsPerMinute calls.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	capacity := float64(requestsPerMinute)
	return &RateLimiter{
		rate:     capacity / 60,
		capacity: capacity,
		tokens:   capacity,
		last:     time.Now(),
	}
}

// SetRate adjusts the per-minute quota in place, so config reloads keep the
// limiter's accumulated state. Tokens above the new capacity are discarded.
func (l *RateLimiter) SetRate(requestsPerMinute int) {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance(time.Now())
	l.capacity = float64(requestsPerMinute)
	l.rate = l.capacity / 60
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.advance(time.Now())
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// advance credits tokens for elapsed time. Caller holds the lock.
func (l *RateLimiter) advance(now time.Time) {
	elapsed := now.Sub(l.last)
	l.last = now
	l.tokens += elapsed.Seconds() * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
}
