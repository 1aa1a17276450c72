package backoff

import (
	"context"
	"errors"
	"time"
)

// DelayHint is implemented by errors that carry a server-directed wait,
// such as a rate limit response with a Retry-After header. When present,
// the hint replaces the computed backoff delay.
type DelayHint interface {
	RetryAfter() time.Duration
}

// Policy bounds a retry loop. Zero fields fall back to the defaults shared
// by the ingestion and query paths.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // wait before the second attempt, doubled each retry
	MaxDelay    time.Duration // upper bound for the doubling
	// Sleep waits between attempts. Tests replace it to record delays
	// without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// Retry runs fn until it returns nil, returns an error retryable reports
// false for, or the attempt budget is spent. A nil retryable treats every
// error as retryable. The error returned is the one from the last attempt,
// or the context error when the wait is interrupted.
func Retry(ctx context.Context, p Policy, retryable func(error) bool, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return err
		}
		delay := p.delay(attempt)
		var hint DelayHint
		if errors.As(err, &hint) {
			if d := hint.RetryAfter(); d > 0 {
				delay = d
			}
		}
		if serr := p.Sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
