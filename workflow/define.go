package workflow

import (
	"errors"
	"fmt"
)

// ─────────────────────────────────────────────────────────────────────────────
// Internal builder state (mutable, per-build)
// ─────────────────────────────────────────────────────────────────────────────

type routeDef[T any] struct {
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

type hookDef[T any] struct {
	state      string
	activities []Activity[T]
	entry      bool // true = OnEnter, false = OnExit
}

// ─────────────────────────────────────────────────────────────────────────────
// Builder
// ─────────────────────────────────────────────────────────────────────────────

// Builder accumulates the workflow definition before compiling it with Build.
// Obtain one via Define[T]().
type Builder[T any] struct {
	routes    map[string]map[string]*routeDef[T]
	globals   map[string]*routeDef[T]
	final     map[string]bool
	hooks     []hookDef[T]
	logger    Logger
	buildErrs []error
}

// Define returns a new Builder for a Workflow parameterised on T.
// T is the payload type passed through every Signal, Activity, and Condition.
//
//	wf, err := workflow.Define[*Step]().
//	    From("Start.Idle").On("SUBMIT").To("Start.Attempting").
//	    Build()
func Define[T any]() *Builder[T] {
	return &Builder[T]{
		routes:  make(map[string]map[string]*routeDef[T]),
		globals: make(map[string]*routeDef[T]),
		final:   make(map[string]bool),
	}
}

// WithLogger sets the transition Logger. Transitions are not logged by default.
func (b *Builder[T]) WithLogger(l Logger) *Builder[T] {
	b.logger = l
	return b
}

// OnEnter registers Activities to run when the workflow enters state.
// Multiple calls to OnEnter for the same state are allowed and appended in order.
func (b *Builder[T]) OnEnter(state string, activities ...Activity[T]) *Builder[T] {
	b.hooks = append(b.hooks, hookDef[T]{state: state, activities: activities, entry: true})
	return b
}

// OnExit registers Activities to run when the workflow leaves state.
func (b *Builder[T]) OnExit(state string, activities ...Activity[T]) *Builder[T] {
	b.hooks = append(b.hooks, hookDef[T]{state: state, activities: activities, entry: false})
	return b
}

// Final marks states as terminal. A final state has no outgoing transitions;
// only global Stay routes are applied while the workflow rests in it.
func (b *Builder[T]) Final(states ...string) *Builder[T] {
	for _, s := range states {
		b.final[s] = true
	}
	return b
}

// From starts a transition definition for one or more source states.
func (b *Builder[T]) From(states ...string) *FromBuilder[T] {
	if len(states) == 0 {
		b.buildErrs = append(b.buildErrs, errors.New("From() called with no states"))
	}
	return &FromBuilder[T]{b: b, states: states}
}

// Any starts a global transition definition. Global routes are checked before
// the per-state table, so a signal registered here is handled identically in
// every state without being repeated in each one.
func (b *Builder[T]) Any() *FromBuilder[T] {
	return &FromBuilder[T]{b: b, global: true}
}

// Build compiles all definitions into an immutable Workflow.
// Returns an error if any duplicate or conflicting definitions were registered.
func (b *Builder[T]) Build() (*Workflow[T], error) {
	if len(b.buildErrs) > 0 {
		return nil, b.buildErrs[0]
	}

	wf := &Workflow[T]{
		routes:     make(map[string]map[string]*route[T]),
		globals:    make(map[string]*route[T]),
		final:      make(map[string]bool, len(b.final)),
		entryHooks: make(map[string][]Activity[T]),
		exitHooks:  make(map[string][]Activity[T]),
		logger:     b.logger,
	}

	for state := range b.final {
		if len(b.routes[state]) > 0 {
			return nil, fmt.Errorf("final state %q has outgoing transitions", state)
		}
		wf.final[state] = true
	}

	for state, signals := range b.routes {
		wf.routes[state] = make(map[string]*route[T])
		for sig, def := range signals {
			if sig == alwaysSignal && def.stay {
				return nil, fmt.Errorf("eventless route from %q cannot Stay", state)
			}
			wf.routes[state][sig] = compileRoute(def)
		}
	}
	for sig, def := range b.globals {
		wf.globals[sig] = compileRoute(def)
	}

	for _, hd := range b.hooks {
		acts := make([]Activity[T], len(hd.activities))
		copy(acts, hd.activities)
		if hd.entry {
			wf.entryHooks[hd.state] = append(wf.entryHooks[hd.state], acts...)
		} else {
			wf.exitHooks[hd.state] = append(wf.exitHooks[hd.state], acts...)
		}
	}

	return wf, nil
}

// MustBuild calls Build and panics on error. Useful for package-level vars.
func (b *Builder[T]) MustBuild() *Workflow[T] {
	wf, err := b.Build()
	if err != nil {
		panic("workflow.MustBuild: " + err.Error())
	}
	return wf
}

func compileRoute[T any](def *routeDef[T]) *route[T] {
	r := &route[T]{
		kind:    def.kind,
		dst:     def.dst,
		stay:    def.stay,
		steps:   make([]Activity[T], len(def.steps)),
		elseDst: def.elseDst,
		hasElse: def.hasElse,
	}
	copy(r.steps, def.steps)
	r.condCases = make([]condCase[T], len(def.condCases))
	copy(r.condCases, def.condCases)
	return r
}

// ensureRoute returns (or creates) the routeDef for state+signal, recording
// a build error if the combination was already defined.
func (b *Builder[T]) ensureRoute(state, signal string) *routeDef[T] {
	if b.routes[state] == nil {
		b.routes[state] = make(map[string]*routeDef[T])
	}
	if _, exists := b.routes[state][signal]; exists {
		b.buildErrs = append(b.buildErrs, fmt.Errorf("duplicate transition: state=%q signal=%q", state, signal))
		return &routeDef[T]{} // dummy to avoid nil dereferences
	}
	def := &routeDef[T]{}
	b.routes[state][signal] = def
	return def
}

func (b *Builder[T]) ensureGlobal(signal string) *routeDef[T] {
	if _, exists := b.globals[signal]; exists {
		b.buildErrs = append(b.buildErrs, fmt.Errorf("duplicate global transition: signal=%q", signal))
		return &routeDef[T]{}
	}
	def := &routeDef[T]{}
	b.globals[signal] = def
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// FromBuilder
// ─────────────────────────────────────────────────────────────────────────────

// FromBuilder narrows the definition to a set of source states, or to every
// state when obtained from Any.
type FromBuilder[T any] struct {
	b      *Builder[T]
	states []string
	global bool
}

// On specifies the signal that triggers the transition.
func (fb *FromBuilder[T]) On(signal string) *OnBuilder[T] {
	if signal == alwaysSignal {
		fb.b.buildErrs = append(fb.b.buildErrs, errors.New("On() called with an empty signal"))
	}
	return &OnBuilder[T]{b: fb.b, states: fb.states, global: fb.global, signal: signal}
}

// Always starts an eventless route: it is evaluated every time the workflow
// settles in one of the source states, and fires as soon as it resolves.
func (fb *FromBuilder[T]) Always() *OnBuilder[T] {
	if fb.global {
		fb.b.buildErrs = append(fb.b.buildErrs, errors.New("Always() requires source states"))
	}
	return &OnBuilder[T]{b: fb.b, states: fb.states, signal: alwaysSignal}
}

// ─────────────────────────────────────────────────────────────────────────────
// OnBuilder
// ─────────────────────────────────────────────────────────────────────────────

// OnBuilder has selected source states and a signal; choose a routing strategy.
type OnBuilder[T any] struct {
	b      *Builder[T]
	states []string
	global bool
	signal string
}

func (ob *OnBuilder[T]) defs() []*routeDef[T] {
	if ob.global {
		return []*routeDef[T]{ob.b.ensureGlobal(ob.signal)}
	}
	defs := make([]*routeDef[T], 0, len(ob.states))
	for _, s := range ob.states {
		defs = append(defs, ob.b.ensureRoute(s, ob.signal))
	}
	return defs
}

// To registers a simple (unconditional) transition to dst.
func (ob *OnBuilder[T]) To(dst string) *SimpleRouteBuilder[T] {
	defs := ob.defs()
	for _, def := range defs {
		def.kind = routeSimple
		def.dst = dst
	}
	return &SimpleRouteBuilder[T]{b: ob.b, defs: defs}
}

// Stay registers an internal transition: its Activities run but the state is
// left untouched and no OnExit/OnEnter hooks fire.
func (ob *OnBuilder[T]) Stay() *SimpleRouteBuilder[T] {
	defs := ob.defs()
	for _, def := range defs {
		def.kind = routeSimple
		def.stay = true
	}
	return &SimpleRouteBuilder[T]{b: ob.b, defs: defs}
}

// If starts a conditional (if-else) routing chain.
func (ob *OnBuilder[T]) If(cond Condition[T], dst string) *IfBuilder[T] {
	defs := ob.defs()
	for _, def := range defs {
		def.kind = routeCond
		def.condCases = append(def.condCases, condCase[T]{cond: cond, dst: dst})
	}
	return &IfBuilder[T]{b: ob.b, defs: defs}
}

// ─────────────────────────────────────────────────────────────────────────────
// SimpleRouteBuilder
// ─────────────────────────────────────────────────────────────────────────────

// SimpleRouteBuilder configures a simple (unconditional) transition.
type SimpleRouteBuilder[T any] struct {
	b    *Builder[T]
	defs []*routeDef[T]
}

// Activity registers one or more Activities to execute during this transition.
// Activities run sequentially in the order given.
func (rb *SimpleRouteBuilder[T]) Activity(activities ...Activity[T]) *SimpleRouteBuilder[T] {
	for _, def := range rb.defs {
		def.steps = append(def.steps, activities...)
	}
	return rb
}

// From is a shortcut to start a new transition from the same Builder.
func (rb *SimpleRouteBuilder[T]) From(states ...string) *FromBuilder[T] {
	return rb.b.From(states...)
}

// Any is a shortcut to start a new global transition.
func (rb *SimpleRouteBuilder[T]) Any() *FromBuilder[T] {
	return rb.b.Any()
}

// OnEnter is a shortcut to add a state entry hook.
func (rb *SimpleRouteBuilder[T]) OnEnter(state string, activities ...Activity[T]) *Builder[T] {
	return rb.b.OnEnter(state, activities...)
}

// OnExit is a shortcut to add a state exit hook.
func (rb *SimpleRouteBuilder[T]) OnExit(state string, activities ...Activity[T]) *Builder[T] {
	return rb.b.OnExit(state, activities...)
}

// Build compiles and returns the Workflow.
func (rb *SimpleRouteBuilder[T]) Build() (*Workflow[T], error) {
	return rb.b.Build()
}

// MustBuild panics on error.
func (rb *SimpleRouteBuilder[T]) MustBuild() *Workflow[T] {
	return rb.b.MustBuild()
}

// ─────────────────────────────────────────────────────────────────────────────
// IfBuilder / BranchBuilder
// ─────────────────────────────────────────────────────────────────────────────

// IfBuilder continues the if-else conditional routing chain.
type IfBuilder[T any] struct {
	b    *Builder[T]
	defs []*routeDef[T]
}

// ElseIf adds another condition branch.
func (ib *IfBuilder[T]) ElseIf(cond Condition[T], dst string) *IfBuilder[T] {
	for _, def := range ib.defs {
		def.condCases = append(def.condCases, condCase[T]{cond: cond, dst: dst})
	}
	return ib
}

// Else sets the fallback destination when no condition matches.
func (ib *IfBuilder[T]) Else(dst string) *BranchBuilder[T] {
	for _, def := range ib.defs {
		def.elseDst = dst
		def.hasElse = true
	}
	return &BranchBuilder[T]{b: ib.b}
}

// Build compiles and returns the Workflow (no Else required).
func (ib *IfBuilder[T]) Build() (*Workflow[T], error) {
	return ib.b.Build()
}

// MustBuild panics on error.
func (ib *IfBuilder[T]) MustBuild() *Workflow[T] {
	return ib.b.MustBuild()
}

// From is a shortcut.
func (ib *IfBuilder[T]) From(states ...string) *FromBuilder[T] {
	return ib.b.From(states...)
}

// Any is a shortcut.
func (ib *IfBuilder[T]) Any() *FromBuilder[T] {
	return ib.b.Any()
}

// OnEnter is a shortcut.
func (ib *IfBuilder[T]) OnEnter(state string, activities ...Activity[T]) *Builder[T] {
	return ib.b.OnEnter(state, activities...)
}

// BranchBuilder is returned after Else() to continue the definition.
type BranchBuilder[T any] struct {
	b *Builder[T]
}

// From is a shortcut.
func (bb *BranchBuilder[T]) From(states ...string) *FromBuilder[T] {
	return bb.b.From(states...)
}

// Any is a shortcut.
func (bb *BranchBuilder[T]) Any() *FromBuilder[T] {
	return bb.b.Any()
}

// OnEnter is a shortcut.
func (bb *BranchBuilder[T]) OnEnter(state string, activities ...Activity[T]) *Builder[T] {
	return bb.b.OnEnter(state, activities...)
}

// OnExit is a shortcut.
func (bb *BranchBuilder[T]) OnExit(state string, activities ...Activity[T]) *Builder[T] {
	return bb.b.OnExit(state, activities...)
}

// Build compiles and returns the Workflow.
func (bb *BranchBuilder[T]) Build() (*Workflow[T], error) {
	return bb.b.Build()
}

// MustBuild panics on error.
func (bb *BranchBuilder[T]) MustBuild() *Workflow[T] {
	return bb.b.MustBuild()
}
