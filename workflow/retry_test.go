package workflow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/im-adarsh/go-authflow/workflow"
)

func blockUntilWaiting(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
}

func TestPoll_ResolvesOnThirdCheck(t *testing.T) {
	clock := clockwork.NewFakeClock()
	start := clock.Now()

	var checks int32
	ready := func() bool { return atomic.AddInt32(&checks, 1) >= 3 }

	resolved := make(chan time.Time, 1)
	errs := make(chan error, 1)
	go func() {
		err := workflow.Poll(ctx, workflow.PollPolicy{Interval: 50 * time.Millisecond, MaxAttempts: 100, Clock: clock}, ready)
		errs <- err
		resolved <- clock.Now()
	}()

	for i := 0; i < 2; i++ {
		blockUntilWaiting(t, clock)
		clock.Advance(50 * time.Millisecond)
	}

	// Two checks have failed and the third wait is pending: nothing may
	// resolve at the 100ms mark.
	blockUntilWaiting(t, clock)
	select {
	case <-resolved:
		t.Fatal("poll resolved before the third check")
	default:
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&checks))

	clock.Advance(50 * time.Millisecond)
	require.NoError(t, <-errs)
	elapsed := (<-resolved).Sub(start)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 200*time.Millisecond)
}

func TestPoll_Exhausted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	errs := make(chan error, 1)
	go func() {
		errs <- workflow.Poll(ctx, workflow.PollPolicy{Interval: 10 * time.Millisecond, MaxAttempts: 3, Clock: clock}, func() bool { return false })
	}()
	for i := 0; i < 3; i++ {
		blockUntilWaiting(t, clock)
		clock.Advance(10 * time.Millisecond)
	}
	assert.ErrorIs(t, <-errs, workflow.ErrPollExhausted)
}

func TestPoll_ContextCancelled(t *testing.T) {
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err := workflow.Poll(cctx, workflow.PollPolicy{Clock: clockwork.NewFakeClock()}, func() bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transient := errors.New("connection reset")

	var calls int32
	act := workflow.Retry(func(context.Context, *form) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return transient
		}
		return nil
	}, workflow.RetryPolicy{MaxAttempts: 5, InitialInterval: 100 * time.Millisecond, Clock: clock})

	errs := make(chan error, 1)
	go func() { errs <- act(ctx, &form{}) }()

	blockUntilWaiting(t, clock)
	clock.Advance(100 * time.Millisecond)
	blockUntilWaiting(t, clock)
	clock.Advance(200 * time.Millisecond)

	require.NoError(t, <-errs)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRetry_Exhausted(t *testing.T) {
	transient := errors.New("connection reset")
	act := workflow.Retry(func(context.Context, *form) error { return transient },
		workflow.RetryPolicy{MaxAttempts: 1, Clock: clockwork.NewFakeClock()})

	err := act(ctx, &form{})
	assert.ErrorIs(t, err, workflow.ErrRetryExhausted)
	assert.ErrorIs(t, err, transient)
}

func TestRetry_NonRetryableAbortsImmediately(t *testing.T) {
	fatal := errors.New("form_password_incorrect")
	var calls int32
	act := workflow.Retry(func(context.Context, *form) error {
		atomic.AddInt32(&calls, 1)
		return fatal
	}, workflow.RetryPolicy{MaxAttempts: 5, NonRetryableErrors: []error{fatal}, Clock: clockwork.NewFakeClock()})

	assert.ErrorIs(t, act(ctx, &form{}), fatal)
	assert.EqualValues(t, 1, calls)
}

func TestRetry_RetryablePredicate(t *testing.T) {
	var calls int32
	act := workflow.Retry(func(context.Context, *form) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("service error")
	}, workflow.RetryPolicy{
		MaxAttempts: 5,
		Retryable:   func(error) bool { return false },
		Clock:       clockwork.NewFakeClock(),
	})

	assert.Error(t, act(ctx, &form{}))
	assert.EqualValues(t, 1, calls)
}
