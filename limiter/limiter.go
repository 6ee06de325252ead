// Package limiter provides the token-bucket rate limiter that gates
// downloads per site.
package limiter

import (
	"sync"
	"time"
)

// Limiter is a discrete-refill token bucket: every elapsed interval adds
// one whole token, capped at capacity. Discrete refill keeps the bucket
// integral, so long idle periods cannot overflow it.
//
// A Limiter is safe for concurrent use. Grants are served in arrival
// order with no fairness guarantee beyond the mutex.
type Limiter struct {
	mu         sync.Mutex
	capacity   int
	interval   time.Duration
	count      int
	lastRefill time.Time
}

// New creates a full bucket that refills one token per interval up to
// capacity. Non-positive arguments fall back to one token per second.
func New(interval time.Duration, capacity int) *Limiter {
	if interval <= 0 {
		interval = time.Second
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Limiter{
		capacity:   capacity,
		interval:   interval,
		count:      capacity,
		lastRefill: time.Now(),
	}
}

// Acquire blocks until a token is granted.
func (l *Limiter) Acquire() {
	l.acquire(time.Time{})
}

// AcquireWithin tries to take a token before the given timeout elapses.
// A retry that would have to sleep past the deadline returns false
// without consuming anything.
func (l *Limiter) AcquireWithin(timeout time.Duration) bool {
	return l.acquire(time.Now().Add(timeout))
}

func (l *Limiter) acquire(deadline time.Time) bool {
	for {
		l.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(l.lastRefill)
		if refill := int(elapsed / l.interval); refill > 0 {
			l.count = min(l.capacity, l.count+refill)
		}
		if l.count > 0 {
			l.count--
			l.lastRefill = now
			l.mu.Unlock()
			return true
		}
		sleep := l.interval - elapsed
		l.mu.Unlock()

		if !deadline.IsZero() && now.Add(sleep).After(deadline) {
			return false
		}
		time.Sleep(sleep)
	}
}

// Interval returns the refill interval.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Capacity returns the bucket size.
func (l *Limiter) Capacity() int { return l.capacity }
