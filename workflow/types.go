// Package workflow provides a stateless, fluent state graph for Go that the
// authentication flow controllers are declared with.
//
// # Terminology
//
//   - Workflow: immutable, compiled state graph (build once, share freely).
//   - Execution: stateful wrapper around a Workflow; one per flow session.
//   - Signal: the named event that drives an Execution to its next state.
//   - Activity: a generic unit of work; used for transitions and state hooks.
//   - Condition: a predicate for if-else routing (a guard).
//
// # Route flavours
//
//   - From(s).On(sig).To(dst) is an external transition: exit, activities, enter.
//   - From(s).On(sig).Stay() is an internal transition running activities only.
//   - From(s).Always().If(...) adds eventless routes evaluated after entering s.
//   - Any().On(sig)... adds global routes, checked before the per-state table
//     of every state.
//   - Final(s) makes s accept only global Stay routes.
//
// # Type parameter T
//
// The Workflow, Execution, Activity and Condition are parameterised on T, the
// payload passed through every signal:
//
//	wf, _ := workflow.Define[*Step]().
//	    From("Start.Idle").On("SUBMIT").To("Start.Attempting").
//	    Build()
package workflow

import (
	"context"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Public functional types
// ─────────────────────────────────────────────────────────────────────────────

// Activity is the fundamental unit of work, used for both transition
// activities and state hooks. If an Activity returns an error the transition
// is aborted and the state is unchanged (except for OnEnter failures where the
// new state is already set).
type Activity[T any] func(ctx context.Context, payload T) error

// Condition evaluates a predicate for if-else routing.
// Return true to select the associated destination state.
type Condition[T any] func(ctx context.Context, payload T) bool

// ─────────────────────────────────────────────────────────────────────────────
// Execution lifecycle types
// ─────────────────────────────────────────────────────────────────────────────

// HistoryEntry records one signal attempt, successful or failed.
type HistoryEntry struct {
	Signal    string
	FromState string
	ToState   string // equals FromState on error (state unchanged)
	At        time.Time
	Duration  time.Duration
	Err       error // nil on success
}

// ExecutionHooks provides optional lifecycle callbacks for an Execution.
type ExecutionHooks[T any] struct {
	// OnTransition is called after every successful signal, including
	// internal (Stay) transitions where from == to.
	OnTransition func(ctx context.Context, from, to, signal string, payload T)
	// OnError is called when a Signal returns an error (state may be unchanged).
	OnError func(ctx context.Context, state, signal string, err error, payload T)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal compiled route types (shared by workflow.go and define.go)
// ─────────────────────────────────────────────────────────────────────────────

// alwaysSignal keys eventless routes in the per-state table. Signal never
// accepts it from callers.
const alwaysSignal = ""

type routeKind int

const (
	routeSimple routeKind = iota
	routeCond
)

// route is the immutable compiled form of a single signal handler.
type route[T any] struct {
	kind routeKind

	// routeSimple
	dst   string
	stay  bool
	steps []Activity[T]

	// routeCond
	condCases []condCase[T]
	elseDst   string
	hasElse   bool
}

type condCase[T any] struct {
	cond Condition[T]
	dst  string
}
