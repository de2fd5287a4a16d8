package signup

import (
	"context"

	"go.uber.org/zap"

	"github.com/im-adarsh/go-authflow/flow"
	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/tasks"
	"github.com/im-adarsh/go-authflow/workflow"
)

// NewMachine compiles the sign-up table.
func NewMachine(r *tasks.Runner, paths flow.Paths, log *zap.Logger) (*flow.Machine, error) {
	is := flow.When

	wf, err := flow.Define(flow.Table{
		Runner:     r,
		Logger:     log,
		Root:       paths.Root,
		Callback:   paths.SignUpSSOCallback,
		Redirector: func(c identity.Client) tasks.Redirector { return c.SignUps() },
		AfterURL:   func(c identity.Client) string { return c.BuildAfterSignUpURL() },
	}).

		// Start
		From(StateStartDetermining).Always().
		If(is(flow.IsComplete), StateComplete).
		ElseIf(is(flow.NeedsVerification), StateVerificationPreparing).
		ElseIf(is(flow.BlockedBySession), StateStartFailure).
		Else(StateStartIdle).
		OnEnter(StateStartAttempting, createSignUp(r)).
		From(StateStartAttempting).On(flow.DoneSignal(tasks.NameCreateSignUp)).To(StateStartDetermining).Activity(flow.AssignResource).
		From(StateStartAttempting).On(flow.ErrorSignal(tasks.NameCreateSignUp)).To(StateStartFailure).Activity(flow.AssignError).

		// Verification
		OnEnter(StateVerificationPreparing, prepareVerification(r)).
		From(StateVerificationPreparing).On(flow.DoneSignal(tasks.NamePrepareVerification)).To(StateVerificationIdle).
		Activity(flow.AssignResource, flow.PushPath(paths.Verify)).
		From(StateVerificationPreparing).On(flow.ErrorSignal(tasks.NamePrepareVerification)).To(StateVerificationIdle).Activity(flow.AssignError).
		From(StateVerificationIdle).On(flow.EventSubmit).To(StateVerificationAttempting).
		From(StateVerificationIdle).On(flow.EventRetry).To(StateVerificationPreparing).
		OnEnter(StateVerificationAttempting, attemptVerification(r)).
		From(StateVerificationAttempting).On(flow.DoneSignal(tasks.NameAttemptVerification)).To(StateStartDetermining).
		Activity(flow.AssignResource, clearCode).
		From(StateVerificationAttempting).On(flow.ErrorSignal(tasks.NameAttemptVerification)).To(StateVerificationIdle).Activity(flow.AssignError).
		Build()
	if err != nil {
		return nil, err
	}
	return &flow.Machine{Name: "sign-up", Initial: StateInit, Workflow: wf}, nil
}

func createSignUp(r *tasks.Runner) workflow.Activity[*flow.Step] {
	return func(_ context.Context, s *flow.Step) error {
		f := s.Ctx.Fields
		params := identity.CreateSignUpParams{
			EmailAddress: f.Value(FieldEmailAddress),
			Password:     f.Value(FieldPassword),
			FirstName:    f.Value(FieldFirstName),
			LastName:     f.Value(FieldLastName),
			Username:     f.Value(FieldUsername),
		}
		flow.InvokeTask(s, tasks.NameCreateSignUp, r.CreateSignUp(s.Ctx.Client.SignUps(), params))
		return nil
	}
}

// nextUnverified is the field the Verification region works on.
func nextUnverified(c *flow.Context) (id, field string) {
	if c.Resource == nil {
		return "", ""
	}
	if len(c.Resource.UnverifiedFields) > 0 {
		field = c.Resource.UnverifiedFields[0]
	}
	return c.Resource.ID, field
}

func prepareVerification(r *tasks.Runner) workflow.Activity[*flow.Step] {
	return func(_ context.Context, s *flow.Step) error {
		id, field := nextUnverified(s.Ctx)
		params := identity.VerificationParams{Field: field, Strategy: identity.StrategyEmailCode}
		flow.InvokeTask(s, tasks.NamePrepareVerification, r.PrepareVerification(s.Ctx.Client.SignUps(), id, params))
		return nil
	}
}

func attemptVerification(r *tasks.Runner) workflow.Activity[*flow.Step] {
	return func(_ context.Context, s *flow.Step) error {
		id, field := nextUnverified(s.Ctx)
		params := identity.VerificationParams{
			Field:    field,
			Strategy: identity.StrategyEmailCode,
			Code:     s.Ctx.Fields.Value(FieldCode),
		}
		flow.InvokeTask(s, tasks.NameAttemptVerification, r.AttemptVerification(s.Ctx.Client.SignUps(), id, params))
		return nil
	}
}

// clearCode drops a consumed code so the next field starts empty.
func clearCode(_ context.Context, s *flow.Step) error {
	s.Ctx.Fields = s.Ctx.Fields.Remove(FieldCode)
	return nil
}
