package bridge

import (
	"context"
	"time"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

// Clock abstracts time for the retry loop so tests can run without sleeping.
// Sleep returns early with ctx.Err() when the context is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// BackoffPolicy retries transient failures with exponential backoff. Only
// errors domain.Transient classifies as retryable are retried; everything
// else surfaces immediately. The policy must only wrap calls that are safe
// to repeat.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultBackoff is three attempts at 200ms, 400ms.
var DefaultBackoff = BackoffPolicy{
	MaxAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// Do runs fn up to MaxAttempts times. It stops early on success, on a
// non-transient error, or when ctx is done.
func (p BackoffPolicy) Do(ctx context.Context, clock Clock, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !domain.Transient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if serr := clock.Sleep(ctx, p.delay(attempt)); serr != nil {
			return serr
		}
	}
	return err
}

func (p BackoffPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
