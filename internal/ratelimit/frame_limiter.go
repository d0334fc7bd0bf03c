// Package ratelimit caps how fast a single signaling endpoint may send.
package ratelimit

import (
	"sync"
	"time"
)

// FrameLimiter is a token bucket counted in whole frames. It holds at most
// burst frames and earns one frame every second/rate; time that has not yet
// earned a whole frame carries over to the next call.
//
// A nil *FrameLimiter allows everything.
type FrameLimiter struct {
	mu sync.Mutex

	clock    Clock
	interval time.Duration
	burst    int64

	tokens int64
	// last is the instant up to which elapsed time has been converted into
	// tokens.
	last time.Time
}

// NewFrameLimiter returns a limiter starting with a full burst, or nil when
// rate <= 0. burst defaults to rate when <= 0.
func NewFrameLimiter(clock Clock, rate, burst int) *FrameLimiter {
	if rate <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = rate
	}
	if clock == nil {
		clock = RealClock{}
	}
	interval := time.Second / time.Duration(rate)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return &FrameLimiter{
		clock:    clock,
		interval: interval,
		burst:    int64(burst),
		tokens:   int64(burst),
		last:     clock.Now(),
	}
}

// PerSecond allows a burst of n frames refilled at n per second. n <= 0 means
// unlimited.
func PerSecond(clock Clock, n int) *FrameLimiter {
	return NewFrameLimiter(clock, n, n)
}

// AllowFrame consumes one frame if one is available.
func (l *FrameLimiter) AllowFrame() bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked(l.clock.Now())
	if l.tokens == 0 {
		return false
	}
	l.tokens--
	return true
}

// Available reports how many frames could be sent right now.
func (l *FrameLimiter) Available() int {
	if l == nil {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(l.clock.Now())
	return int(l.tokens)
}

func (l *FrameLimiter) refillLocked(now time.Time) {
	// A clock step backwards or a full bucket resets the reference point so
	// idle time is not banked beyond the burst.
	if now.Before(l.last) || l.tokens >= l.burst {
		l.last = now
		return
	}

	earned := int64(now.Sub(l.last) / l.interval)
	if earned <= 0 {
		return
	}
	if earned >= l.burst-l.tokens {
		l.tokens = l.burst
		l.last = now
		return
	}
	l.tokens += earned
	l.last = l.last.Add(time.Duration(earned) * l.interval)
}
