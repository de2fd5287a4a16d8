package workflow

import "errors"

// Sentinel errors returned by Workflow and Execution methods.
// Use errors.Is() for matching:
//
//	if errors.Is(err, workflow.ErrPollExhausted) { ... }
var (
	// ErrUnknownSignal is returned when no transition is registered for the
	// given signal in the current state.
	ErrUnknownSignal = errors.New("unknown signal for current state")

	// ErrFinalState is returned when a signal other than a global Stay route
	// reaches a state declared with Final.
	ErrFinalState = errors.New("state is final")

	// ErrNoConditionMatched is returned when a conditional route is evaluated
	// but no branch matches and no else clause is defined.
	ErrNoConditionMatched = errors.New("no condition matched and no else clause defined")

	// ErrAlwaysLoop is returned when eventless routes keep firing past the
	// settle limit, which means two or more states route to each other
	// unconditionally.
	ErrAlwaysLoop = errors.New("eventless routes did not settle")

	// ErrRetryExhausted is returned by Retry() when all retry attempts are
	// exhausted and the Activity still returns an error.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrPollExhausted is returned by Poll() when the readiness predicate is
	// still false after the last attempt.
	ErrPollExhausted = errors.New("poll attempts exhausted")

	// ErrExecutionCancelled is returned by Execution.Signal when the Execution
	// has already been cancelled via Execution.Cancel().
	ErrExecutionCancelled = errors.New("execution has been cancelled")
)
