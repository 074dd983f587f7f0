package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket sized in runs per minute.
type Limiter struct {
	inner *rate.Limiter
}

// NewRunLimiter allows perMinute runs each minute, with at most one queued
// burst run on top of the steady rate.
func NewRunLimiter(perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	every := time.Minute / time.Duration(perMinute)
	return NewLimiter(float64(rate.Every(every)), 1)
}

// NewLimiter creates a limiter of r tokens per second with burst b.
func NewLimiter(r float64, b int) *Limiter {
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(r), b),
	}
}

// Allow reports whether a run may start now.
func (l *Limiter) Allow() bool {
	return l.inner.Allow()
}

// Wait blocks until a run may start.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.inner.Wait(ctx)
}

// Delay is how long a run would have to wait if it started now.
func (l *Limiter) Delay() time.Duration {
	r := l.inner.Reserve()
	defer r.Cancel()
	return r.Delay()
}
