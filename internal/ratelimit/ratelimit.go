// Package ratelimit provides the randomized human-like pacing used
// between browser actions and scrape tasks.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SleepFunc waits a random duration in [min, max] or until ctx is done.
// Components take a SleepFunc so tests can substitute a recording no-op.
type SleepFunc func(ctx context.Context, min, max time.Duration) error

// Jitter returns a random duration in [min, max].
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// RandomDelay sleeps a jittered duration and honors context cancellation.
// It is the default SleepFunc.
func RandomDelay(ctx context.Context, min, max time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(Jitter(min, max)):
		return nil
	}
}

// Limiter enforces a jittered minimum spacing between successive actions.
type Limiter struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
}

func NewLimiter(minDelay, maxDelay time.Duration) *Limiter {
	return &Limiter{minDelay: minDelay, maxDelay: maxDelay}
}

// Wait blocks until at least a jittered delay has passed since the last
// action, then records the new action time.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.lastAction)
	delay := Jitter(l.minDelay, l.maxDelay)

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	l.lastAction = time.Now()
	return nil
}

// SetDelay updates the spacing range.
func (l *Limiter) SetDelay(min, max time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minDelay = min
	l.maxDelay = max
}
