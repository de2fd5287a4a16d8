package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ─────────────────────────────────────────────────────────────────────────────
// RetryPolicy
// ─────────────────────────────────────────────────────────────────────────────

// RetryPolicy configures the retry behaviour for an Activity wrapped with Retry().
// Zero values produce sensible defaults (see withDefaults).
type RetryPolicy struct {
	// MaxAttempts is the maximum number of times the Activity is called.
	// 0 means unlimited; the Activity is retried until it succeeds or
	// the context is cancelled.
	MaxAttempts int

	// InitialInterval is the wait time before the second attempt.
	// Defaults to 1 second.
	InitialInterval time.Duration

	// BackoffCoefficient multiplies the interval after each failure.
	// 1.0 = constant interval, 2.0 = exponential backoff. Defaults to 2.0.
	BackoffCoefficient float64

	// MaxInterval caps the wait time between attempts. 0 means uncapped.
	MaxInterval time.Duration

	// NonRetryableErrors lists errors that abort the retry loop immediately,
	// even when MaxAttempts has not been reached.
	NonRetryableErrors []error

	// Retryable, when set, is consulted for errors not listed in
	// NonRetryableErrors; returning false aborts the loop.
	Retryable func(error) bool

	// Clock drives the waits. Defaults to the real clock.
	Clock clockwork.Clock
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.BackoffCoefficient <= 0 {
		p.BackoffCoefficient = 2.0
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	return p
}

// ─────────────────────────────────────────────────────────────────────────────
// Activity wrappers
// ─────────────────────────────────────────────────────────────────────────────

// Retry returns an Activity that transparently retries fn according to policy.
// The returned Activity satisfies ErrRetryExhausted (wrapped) when all attempts fail.
//
//	var policy = workflow.RetryPolicy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond}
//	.Activity(workflow.Retry(callIdentityService, policy))
func Retry[T any](fn Activity[T], policy RetryPolicy) Activity[T] {
	policy = policy.withDefaults()
	return func(ctx context.Context, payload T) error {
		interval := policy.InitialInterval
		for attempt := 1; ; attempt++ {
			err := fn(ctx, payload)
			if err == nil {
				return nil
			}

			// Abort immediately on non-retryable errors.
			for _, nr := range policy.NonRetryableErrors {
				if errors.Is(err, nr) {
					return err
				}
			}
			if policy.Retryable != nil && !policy.Retryable(err) {
				return err
			}

			// Abort when max attempts reached.
			if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
				return fmt.Errorf("%w (attempts=%d): %w", ErrRetryExhausted, attempt, err)
			}

			// Wait before next attempt, but respect context cancellation.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-policy.Clock.After(interval):
			}

			// Exponential backoff with optional cap.
			next := time.Duration(float64(interval) * policy.BackoffCoefficient)
			if policy.MaxInterval > 0 && next > policy.MaxInterval {
				next = policy.MaxInterval
			}
			interval = next
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Poll
// ─────────────────────────────────────────────────────────────────────────────

// PollPolicy configures a bounded readiness wait.
type PollPolicy struct {
	// Interval between checks. Defaults to 50ms.
	Interval time.Duration
	// MaxAttempts bounds the number of checks. Defaults to 100.
	MaxAttempts int
	// Clock drives the waits. Defaults to the real clock.
	Clock clockwork.Clock
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = 50 * time.Millisecond
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 100
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	return p
}

// Poll checks ready once per Interval, the first check one Interval after the
// call, and returns nil as soon as it reports true. After MaxAttempts false
// checks it returns ErrPollExhausted (wrapped).
func Poll(ctx context.Context, policy PollPolicy, ready func() bool) error {
	policy = policy.withDefaults()
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-policy.Clock.After(policy.Interval):
		}
		if ready() {
			return nil
		}
	}
	return fmt.Errorf("%w (attempts=%d, interval=%s)", ErrPollExhausted, policy.MaxAttempts, policy.Interval)
}
