package workflow

import (
	"context"
	"sync"
	"time"
)

// ExecutionOption configures an Execution at construction time.
type ExecutionOption[T any] func(*Execution[T])

// WithHooks attaches lifecycle callbacks to the Execution.
//
//	exec := wf.NewExecution(ctx, "Init", workflow.WithHooks(workflow.ExecutionHooks[*flow.Step]{
//	    OnError: func(ctx context.Context, state, signal string, err error, s *flow.Step) {
//	        log.Error("signal failed", zap.String("state", state), zap.Error(err))
//	    },
//	}))
func WithHooks[T any](hooks ExecutionHooks[T]) ExecutionOption[T] {
	return func(e *Execution[T]) { e.hooks = hooks }
}

// Execution holds the current state of one flow driven by a Workflow, with
// the record of every signal applied to it. It is safe for concurrent use.
type Execution[T any] struct {
	// signalMu orders transitions. mu only guards the fields below it, so
	// readers are never blocked behind a running activity.
	signalMu sync.Mutex

	mu       sync.Mutex
	cond     *sync.Cond
	workflow *Workflow[T]
	state    string
	history  []HistoryEntry
	hooks    ExecutionHooks[T]
	life     context.Context
	stop     context.CancelFunc
}

// Start enters the initial state: its OnEnter hooks run and its eventless
// routes are followed. It is recorded in History with an empty Signal.
func (e *Execution[T]) Start(ctx context.Context, payload T) error {
	return e.run(ctx, "", payload, func(from string) (string, error) {
		return e.workflow.Enter(e.life, from, payload)
	})
}

// Signal applies signal to the current state. Activities see the
// Execution's own context, so Cancel reaches them.
func (e *Execution[T]) Signal(ctx context.Context, signal string, payload T) error {
	return e.run(ctx, signal, payload, func(from string) (string, error) {
		return e.workflow.Signal(e.life, from, signal, payload)
	})
}

func (e *Execution[T]) run(ctx context.Context, signal string, payload T, apply func(from string) (string, error)) error {
	e.signalMu.Lock()
	defer e.signalMu.Unlock()

	from, err := e.current()
	if err != nil {
		return err
	}

	at := time.Now()
	to, err := apply(from)
	e.commit(HistoryEntry{
		Signal:    signal,
		FromState: from,
		ToState:   to,
		At:        at,
		Duration:  time.Since(at),
		Err:       err,
	})

	switch {
	case err != nil && e.hooks.OnError != nil:
		e.hooks.OnError(ctx, from, signal, err, payload)
	case err == nil && e.hooks.OnTransition != nil:
		e.hooks.OnTransition(ctx, from, to, signal, payload)
	}
	return err
}

// current returns the state a new signal starts from.
func (e *Execution[T]) current() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.life.Err() != nil {
		return "", ErrExecutionCancelled
	}
	return e.state, nil
}

// commit moves the Execution to entry.ToState and wakes Await callers.
func (e *Execution[T]) commit(entry HistoryEntry) {
	e.mu.Lock()
	e.state = entry.ToState
	e.history = append(e.history, entry)
	e.cond.Broadcast()
	e.mu.Unlock()
}

// CurrentState returns the state the Execution rests in.
func (e *Execution[T]) CurrentState() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CanReceive reports whether signal is accepted in the current state,
// global routes included.
func (e *Execution[T]) CanReceive(signal string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workflow.Accepts(e.state, signal)
}

// AvailableSignals returns the signals accepted in the current state.
func (e *Execution[T]) AvailableSignals() []string {
	return e.workflow.AvailableSignals(e.CurrentState())
}

// History returns a copy of every recorded signal, failed ones included.
func (e *Execution[T]) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry(nil), e.history...)
}

// Cancel ends the Execution. Running activities see their context done and
// later signals fail with ErrExecutionCancelled.
func (e *Execution[T]) Cancel() {
	e.stop()
	e.wake()
}

func (e *Execution[T]) wake() {
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Done is closed once the Execution is cancelled.
func (e *Execution[T]) Done() <-chan struct{} {
	return e.life.Done()
}

// Await blocks until condition holds for the current state. It returns
// ctx.Err() when ctx ends first and ErrExecutionCancelled when the
// Execution is cancelled first. condition runs with the state lock held and
// must not call back into the Execution.
//
//	err := exec.Await(ctx, func(state string) bool { return state == "Complete" })
func (e *Execution[T]) Await(ctx context.Context, condition func(state string) bool) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.wake()
		case <-done:
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	for !condition(e.state) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.life.Err() != nil {
			return ErrExecutionCancelled
		}
		e.cond.Wait()
	}
	return nil
}
