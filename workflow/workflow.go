package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// maxSettleSteps bounds how many eventless routes may fire in a row.
const maxSettleSteps = 32

// Workflow is the immutable, compiled state graph. Build it once with
// Define() and share it freely across goroutines; all mutable per-session
// state lives in Execution.
//
// Use NewExecution to create a stateful instance for a single flow.
type Workflow[T any] struct {
	routes     map[string]map[string]*route[T]
	globals    map[string]*route[T]
	final      map[string]bool
	entryHooks map[string][]Activity[T]
	exitHooks  map[string][]Activity[T]
	logger     Logger
}

// Signal drives the workflow from currentState via signal, returning the new state.
// It is stateless: the caller is responsible for persisting the returned state.
//
// Execution order for a successful external transition:
//  1. Look up the route: global routes first, then the per-state table.
//  2. Resolve destination state (evaluate conditions if needed).
//  3. Run OnExit hooks for currentState.
//  4. Run transition Activities.
//  5. Log the transition.
//  6. Run OnEnter hooks for the new state.
//  7. Follow eventless routes until the workflow settles.
//
// A Stay route only runs step 4.
//
// On error the state is always returned alongside the error so callers know
// the effective state even when a late hook fails.
func (w *Workflow[T]) Signal(ctx context.Context, currentState, signal string, payload T) (string, error) {
	r, err := w.lookup(currentState, signal)
	if err != nil {
		return currentState, err
	}

	if r.stay {
		if err := w.executeSteps(ctx, r, payload); err != nil {
			return currentState, err
		}
		return currentState, nil
	}

	dst, err := w.resolve(ctx, r, payload)
	if err != nil {
		return currentState, err
	}

	state, err := w.step(ctx, currentState, signal, dst, r, payload)
	if err != nil {
		return state, err
	}
	return w.settle(ctx, state, payload)
}

// Enter runs the OnEnter hooks of state and follows its eventless routes, as
// if the workflow had just transitioned into it. Executions use it to start.
func (w *Workflow[T]) Enter(ctx context.Context, state string, payload T) (string, error) {
	if err := w.runHooks(ctx, w.entryHooks[state], payload); err != nil {
		return state, fmt.Errorf("OnEnter hook failed for state=%q: %w", state, err)
	}
	return w.settle(ctx, state, payload)
}

// IsFinal reports whether state was declared with Final.
func (w *Workflow[T]) IsFinal(state string) bool {
	return w.final[state]
}

// Accepts reports whether signal has a route from state.
func (w *Workflow[T]) Accepts(state, signal string) bool {
	_, err := w.lookup(state, signal)
	return err == nil
}

func (w *Workflow[T]) lookup(state, signal string) (*route[T], error) {
	if signal == alwaysSignal {
		return nil, fmt.Errorf("%w: state=%q signal=%q", ErrUnknownSignal, state, signal)
	}
	if r, ok := w.globals[signal]; ok && (r.stay || !w.final[state]) {
		return r, nil
	}
	if w.final[state] {
		return nil, fmt.Errorf("%w: state=%q signal=%q", ErrFinalState, state, signal)
	}
	if r, ok := w.routes[state][signal]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: state=%q signal=%q", ErrUnknownSignal, state, signal)
}

// step performs one external transition without settling.
func (w *Workflow[T]) step(ctx context.Context, from, signal, dst string, r *route[T], payload T) (string, error) {
	if err := w.runHooks(ctx, w.exitHooks[from], payload); err != nil {
		return from, fmt.Errorf("OnExit hook failed for state=%q: %w", from, err)
	}

	if err := w.executeSteps(ctx, r, payload); err != nil {
		return from, err
	}

	// State is now dst; log only once the transition cannot be rolled back.
	if w.logger != nil {
		w.logger.LogTransition(from, signal, dst)
	}

	// OnEnter failure returns dst so callers know the state has already changed.
	if err := w.runHooks(ctx, w.entryHooks[dst], payload); err != nil {
		return dst, fmt.Errorf("OnEnter hook failed for state=%q: %w", dst, err)
	}
	return dst, nil
}

// settle follows eventless routes from state until none resolves.
func (w *Workflow[T]) settle(ctx context.Context, state string, payload T) (string, error) {
	for i := 0; i < maxSettleSteps; i++ {
		r, ok := w.routes[state][alwaysSignal]
		if !ok {
			return state, nil
		}
		dst, err := w.resolve(ctx, r, payload)
		if errors.Is(err, ErrNoConditionMatched) {
			return state, nil
		}
		if err != nil {
			return state, err
		}
		state, err = w.step(ctx, state, alwaysSignal, dst, r, payload)
		if err != nil {
			return state, err
		}
	}
	return state, fmt.Errorf("%w: stopped in state=%q", ErrAlwaysLoop, state)
}

// executeSteps runs each Activity in order, stopping at the first failure.
func (w *Workflow[T]) executeSteps(ctx context.Context, r *route[T], payload T) error {
	for i, a := range r.steps {
		if err := a(ctx, payload); err != nil {
			return fmt.Errorf("activity[%d] failed: %w", i, err)
		}
	}
	return nil
}

// resolve determines the destination state from the route definition.
func (w *Workflow[T]) resolve(ctx context.Context, r *route[T], payload T) (string, error) {
	switch r.kind {
	case routeSimple:
		return r.dst, nil

	case routeCond:
		for _, c := range r.condCases {
			if c.cond(ctx, payload) {
				return c.dst, nil
			}
		}
		if r.hasElse {
			return r.elseDst, nil
		}
		return "", ErrNoConditionMatched

	default:
		return "", fmt.Errorf("unknown route kind %d", r.kind)
	}
}

// runHooks executes the hook Activities for a state entry or exit in order.
func (w *Workflow[T]) runHooks(ctx context.Context, hooks []Activity[T], payload T) error {
	for _, a := range hooks {
		if err := a(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// NewExecution creates an Execution resting in initialState. Activities run
// under a child of ctx; once ctx ends, later signals are rejected as after
// Cancel.
func (w *Workflow[T]) NewExecution(ctx context.Context, initialState string, opts ...ExecutionOption[T]) *Execution[T] {
	life, stop := context.WithCancel(ctx)
	e := &Execution[T]{
		workflow: w,
		state:    initialState,
		life:     life,
		stop:     stop,
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AvailableSignals returns the signals accepted in state, global ones
// included, sorted alphabetically.
func (w *Workflow[T]) AvailableSignals(state string) []string {
	seen := make(map[string]bool)
	for s, r := range w.globals {
		if r.stay || !w.final[state] {
			seen[s] = true
		}
	}
	if !w.final[state] {
		for s := range w.routes[state] {
			if s != alwaysSignal {
				seen[s] = true
			}
		}
	}
	sigs := make([]string, 0, len(seen))
	for s := range seen {
		sigs = append(sigs, s)
	}
	sort.Strings(sigs)
	return sigs
}

// States returns all states that have at least one outgoing route or were
// declared final, sorted.
func (w *Workflow[T]) States() []string {
	seen := make(map[string]bool, len(w.routes)+len(w.final))
	for s := range w.routes {
		seen[s] = true
	}
	for s := range w.final {
		seen[s] = true
	}
	states := make([]string, 0, len(seen))
	for s := range seen {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}

// Visualize returns a human-readable text representation of the workflow graph.
func (w *Workflow[T]) Visualize() string {
	if len(w.routes) == 0 && len(w.globals) == 0 {
		return "(empty workflow)\n"
	}
	var sb strings.Builder
	sb.WriteString("Workflow:\n")
	if len(w.globals) > 0 {
		sb.WriteString("  [*]\n")
		sigs := make([]string, 0, len(w.globals))
		for s := range w.globals {
			sigs = append(sigs, s)
		}
		sort.Strings(sigs)
		for _, sig := range sigs {
			sb.WriteString(fmt.Sprintf("    --%s--> %s\n", sig, routeLabel(w.globals[sig])))
		}
	}
	for _, state := range w.States() {
		if w.final[state] {
			sb.WriteString(fmt.Sprintf("  [%s] (final)\n", state))
			continue
		}
		sb.WriteString(fmt.Sprintf("  [%s]\n", state))
		if r, ok := w.routes[state][alwaysSignal]; ok {
			sb.WriteString(fmt.Sprintf("    --(always)--> %s\n", routeLabel(r)))
		}
		sigs := make([]string, 0, len(w.routes[state]))
		for s := range w.routes[state] {
			if s != alwaysSignal {
				sigs = append(sigs, s)
			}
		}
		sort.Strings(sigs)
		for _, sig := range sigs {
			sb.WriteString(fmt.Sprintf("    --%s--> %s\n", sig, routeLabel(w.routes[state][sig])))
		}
	}
	return sb.String()
}

func routeLabel[T any](r *route[T]) string {
	switch r.kind {
	case routeSimple:
		if r.stay {
			return "(stay)"
		}
		return r.dst
	case routeCond:
		dsts := make([]string, 0, len(r.condCases)+1)
		for _, c := range r.condCases {
			dsts = append(dsts, c.dst)
		}
		if r.hasElse {
			dsts = append(dsts, r.elseDst+" (else)")
		}
		return "[" + strings.Join(dsts, " | ") + "]"
	default:
		return "?"
	}
}
