package signin

import (
	"context"

	"go.uber.org/zap"

	"github.com/im-adarsh/go-authflow/flow"
	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/tasks"
	"github.com/im-adarsh/go-authflow/workflow"
)

// NewMachine compiles the sign-in table.
func NewMachine(r *tasks.Runner, paths flow.Paths, log *zap.Logger) (*flow.Machine, error) {
	is := flow.When

	wf, err := flow.Define(flow.Table{
		Runner:     r,
		Logger:     log,
		Root:       paths.Root,
		Callback:   paths.SSOCallback,
		Redirector: func(c identity.Client) tasks.Redirector { return c.SignIns() },
		AfterURL:   func(c identity.Client) string { return c.BuildAfterSignInURL() },
	}).

		// Start
		OnEnter(StateStartDetermining, flow.PushPathWhen(flow.NeedsSecondFactor, paths.FactorTwo)).
		From(StateStartDetermining).Always().
		If(is(flow.IsComplete), StateComplete).
		ElseIf(is(flow.NeedsFirstFactor), StateFirstFactorPreparing).
		ElseIf(is(flow.NeedsSecondFactor), StateSecondFactorPreparing).
		ElseIf(is(flow.BlockedBySession), StateStartFailure).
		Else(StateStartIdle).
		OnEnter(StateStartAttempting, createSignIn(r)).
		From(StateStartAttempting).On(flow.DoneSignal(tasks.NameCreateSignIn)).To(StateStartDetermining).Activity(flow.AssignResource).
		From(StateStartAttempting).On(flow.ErrorSignal(tasks.NameCreateSignIn)).To(StateStartFailure).Activity(flow.AssignError).

		// FirstFactor
		OnEnter(StateFirstFactorPreparing, prepareFirstFactor(r)).
		From(StateFirstFactorPreparing).On(flow.DoneSignal(tasks.NamePrepareFirstFactor)).To(StateFirstFactorIdle).
		Activity(flow.AssignResource, flow.PushPath(paths.FactorOne)).
		From(StateFirstFactorPreparing).On(flow.ErrorSignal(tasks.NamePrepareFirstFactor)).To(StateStartFailure).Activity(flow.AssignError).
		From(StateFirstFactorIdle).On(flow.EventSubmit).To(StateFirstFactorAttempting).
		From(StateFirstFactorIdle).On(flow.EventRetry).To(StateFirstFactorPreparing).
		OnEnter(StateFirstFactorAttempting, attemptFirstFactor(r)).
		From(StateFirstFactorAttempting).On(flow.DoneSignal(tasks.NameAttemptFirstFactor)).To(StateFirstFactorSuccess).Activity(flow.AssignResource).
		From(StateFirstFactorAttempting).On(flow.ErrorSignal(tasks.NameAttemptFirstFactor)).To(StateFirstFactorIdle).Activity(flow.AssignError).
		OnEnter(StateFirstFactorSuccess,
			flow.FlagUnhandledStatus(flow.IsComplete, flow.NeedsSecondFactor),
			flow.PushPathWhen(flow.NeedsSecondFactor, paths.FactorTwo)).
		From(StateFirstFactorSuccess).Always().
		If(is(flow.IsComplete), StateComplete).
		ElseIf(is(flow.NeedsSecondFactor), StateSecondFactorPreparing).
		Else(StateStartFailure).

		// SecondFactor
		OnEnter(StateSecondFactorPreparing, prepareSecondFactor(r)).
		From(StateSecondFactorPreparing).On(flow.DoneSignal(tasks.NamePrepareSecondFactor)).To(StateSecondFactorIdle).Activity(flow.AssignResource).
		From(StateSecondFactorPreparing).On(flow.ErrorSignal(tasks.NamePrepareSecondFactor)).To(StateSecondFactorIdle).Activity(flow.AssignError).
		From(StateSecondFactorIdle).On(flow.EventSubmit).To(StateSecondFactorAttempting).
		From(StateSecondFactorIdle).On(flow.EventRetry).To(StateSecondFactorPreparing).
		OnEnter(StateSecondFactorAttempting, attemptSecondFactor(r)).
		From(StateSecondFactorAttempting).On(flow.DoneSignal(tasks.NameAttemptSecondFactor)).To(StateSecondFactorSuccess).Activity(flow.AssignResource).
		From(StateSecondFactorAttempting).On(flow.ErrorSignal(tasks.NameAttemptSecondFactor)).To(StateSecondFactorIdle).Activity(flow.AssignError).
		OnEnter(StateSecondFactorSuccess, flow.FlagUnhandledStatus(flow.IsComplete)).
		From(StateSecondFactorSuccess).Always().
		If(is(flow.IsComplete), StateComplete).
		Else(StateStartFailure).
		Build()
	if err != nil {
		return nil, err
	}
	return &flow.Machine{Name: "sign-in", Initial: StateInit, Workflow: wf}, nil
}

func createSignIn(r *tasks.Runner) workflow.Activity[*flow.Step] {
	return func(_ context.Context, s *flow.Step) error {
		f := s.Ctx.Fields
		params := identity.CreateSignInParams{
			Identifier: f.Value(FieldIdentifier),
			Password:   f.Value(FieldPassword),
		}
		if params.Password != "" {
			params.Strategy = identity.StrategyPassword
		}
		flow.InvokeTask(s, tasks.NameCreateSignIn, r.CreateSignIn(s.Ctx.Client.SignIns(), params))
		return nil
	}
}

// preferredStrategy is the strategy the host selected, or password.
func preferredStrategy(c *flow.Context, fallback identity.Strategy) identity.Strategy {
	if v := c.Fields.Value(FieldStrategy); v != "" {
		return identity.Strategy(v)
	}
	return fallback
}

func firstFactor(c *flow.Context) identity.Factor {
	prefer := preferredStrategy(c, identity.StrategyPassword)
	if c.Resource != nil {
		if f, ok := c.Resource.FirstFactor(prefer); ok {
			return f
		}
	}
	return identity.Factor{Strategy: prefer}
}

func secondFactor(c *flow.Context) identity.Factor {
	prefer := preferredStrategy(c, identity.StrategyTOTP)
	if c.Resource != nil {
		if f, ok := c.Resource.SecondFactor(prefer); ok {
			return f
		}
	}
	return identity.Factor{Strategy: prefer}
}

func resourceID(c *flow.Context) string {
	if c.Resource == nil {
		return ""
	}
	return c.Resource.ID
}

func prepareFirstFactor(r *tasks.Runner) workflow.Activity[*flow.Step] {
	return func(_ context.Context, s *flow.Step) error {
		f := firstFactor(s.Ctx)
		params := identity.PrepareFactorParams{Strategy: f.Strategy, SafeIdentifier: f.SafeIdentifier}
		flow.InvokeTask(s, tasks.NamePrepareFirstFactor, r.PrepareFirstFactor(s.Ctx.Client.SignIns(), resourceID(s.Ctx), params))
		return nil
	}
}

func attemptFirstFactor(r *tasks.Runner) workflow.Activity[*flow.Step] {
	return func(_ context.Context, s *flow.Step) error {
		params := identity.AttemptFactorParams{
			Strategy: firstFactor(s.Ctx).Strategy,
			Password: s.Ctx.Fields.Value(FieldPassword),
			Code:     s.Ctx.Fields.Value(FieldCode),
		}
		flow.InvokeTask(s, tasks.NameAttemptFirstFactor, r.AttemptFirstFactor(s.Ctx.Client.SignIns(), resourceID(s.Ctx), params))
		return nil
	}
}

func prepareSecondFactor(r *tasks.Runner) workflow.Activity[*flow.Step] {
	return func(_ context.Context, s *flow.Step) error {
		f := secondFactor(s.Ctx)
		params := identity.PrepareFactorParams{Strategy: f.Strategy, SafeIdentifier: f.SafeIdentifier}
		flow.InvokeTask(s, tasks.NamePrepareSecondFactor, r.PrepareSecondFactor(s.Ctx.Client.SignIns(), resourceID(s.Ctx), params))
		return nil
	}
}

func attemptSecondFactor(r *tasks.Runner) workflow.Activity[*flow.Step] {
	return func(_ context.Context, s *flow.Step) error {
		params := identity.AttemptFactorParams{
			Strategy: secondFactor(s.Ctx).Strategy,
			Code:     s.Ctx.Fields.Value(FieldCode),
		}
		flow.InvokeTask(s, tasks.NameAttemptSecondFactor, r.AttemptSecondFactor(s.Ctx.Client.SignIns(), resourceID(s.Ctx), params))
		return nil
	}
}
