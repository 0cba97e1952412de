package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces outbound requests issued by one client instance.
type Limiter interface {
	Wait(ctx context.Context) error
}

// IntervalLimiter enforces a fixed minimum interval between requests. The
// mutex is held for the whole wait, so concurrent callers queue and proceed
// one per interval boundary instead of all passing at once. The last-issued
// timestamp is updated together with the decision to proceed, never after the
// downstream call, so a slow or cancelled request cannot skew later callers.
type IntervalLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	last     time.Time

	// Injectable for tests with a fake clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	return &IntervalLimiter{
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func (l *IntervalLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elapsed := l.now().Sub(l.last); elapsed < l.interval {
		if err := l.sleep(ctx, l.interval-elapsed); err != nil {
			return err
		}
	}

	l.last = l.now()
	return nil
}

// Interval reports the configured minimum spacing.
func (l *IntervalLimiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
