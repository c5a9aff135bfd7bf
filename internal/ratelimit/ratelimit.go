package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-connection token bucket that also counts rejections, so
// callers can escalate from dropping messages to disconnecting.
type Limiter struct {
	limiter *rate.Limiter

	mu         sync.Mutex
	violations int
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Allow reports whether one event may happen now.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN reports whether n events may happen now.
func (l *Limiter) AllowN(n int) bool {
	return l.allowAt(time.Now(), n)
}

func (l *Limiter) allowAt(now time.Time, n int) bool {
	if l.limiter.AllowN(now, n) {
		return true
	}
	l.mu.Lock()
	l.violations++
	l.mu.Unlock()
	return false
}

// Violations is the number of rejected calls so far.
func (l *Limiter) Violations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.violations
}
