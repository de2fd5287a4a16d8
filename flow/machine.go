package flow

import (
	"context"
	"strings"

	"github.com/im-adarsh/go-authflow/workflow"
)

// Machine is a compiled flow table. It is immutable and may back any
// number of Controllers.
type Machine struct {
	Name     string
	Initial  string
	Workflow *workflow.Workflow[*Step]
}

// Enter starts a flow from the initial state without executing any effect.
func (m *Machine) Enter(ctx context.Context, fctx Context) (string, Context, []Effect, error) {
	step := NewStep(fctx, Event{})
	state, err := m.Workflow.Enter(ctx, m.Initial, step)
	return state, *step.Ctx, step.Effects(), err
}

// Transition applies ev to a flow resting in state and returns the next
// state, the next context and the effects to execute. fctx is not modified.
func (m *Machine) Transition(ctx context.Context, state string, fctx Context, ev Event) (string, Context, []Effect, error) {
	if err := ev.Validate(); err != nil {
		return state, fctx, nil, err
	}
	step := NewStep(fctx, ev)
	next, err := m.Workflow.Signal(ctx, state, ev.Type, step)
	return next, *step.Ctx, step.Effects(), err
}

// Visualize renders the table.
func (m *Machine) Visualize() string {
	return m.Name + " " + m.Workflow.Visualize()
}

// InRegion reports whether state is region or one of its sub-states, e.g.
// "Start.Idle" is in region "Start".
func InRegion(state, region string) bool {
	return state == region || strings.HasPrefix(state, region+".")
}
