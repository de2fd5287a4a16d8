package tasks

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/workflow"
)

// Task names, also used as span names and invocation ids.
const (
	NameWaitForClient            = "wait_for_client"
	NameWaitForEnvironment       = "wait_for_environment"
	NameCreateSignIn             = "create_sign_in"
	NamePrepareFirstFactor       = "prepare_first_factor"
	NameAttemptFirstFactor       = "attempt_first_factor"
	NamePrepareSecondFactor      = "prepare_second_factor"
	NameAttemptSecondFactor      = "attempt_second_factor"
	NameCreateSignUp             = "create_sign_up"
	NamePrepareVerification      = "prepare_verification"
	NameAttemptVerification      = "attempt_verification"
	NameAuthenticateWithRedirect = "authenticate_with_redirect"
	NameHandleRedirectCallback   = "handle_redirect_callback"
)

// Redirector starts an OAuth redirect. Both sign-in and sign-up services
// implement it.
type Redirector interface {
	AuthenticateWithRedirect(ctx context.Context, params identity.RedirectParams) error
}

// WaitForClient resolves once the client reports loaded. It fails with a
// TimeoutError when the poll policy is exhausted.
func (r *Runner) WaitForClient(c identity.Client) Task[struct{}] {
	return run(r, NameWaitForClient, nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.wait(ctx, "wait for client", c.Loaded)
	})
}

// WaitForEnvironment resolves to the tenant environment once it is loaded.
func (r *Runner) WaitForEnvironment(c identity.Client) Task[*identity.Environment] {
	return run(r, NameWaitForEnvironment, nil, func(ctx context.Context) (*identity.Environment, error) {
		var env *identity.Environment
		err := r.wait(ctx, "wait for environment", func() bool {
			env = c.Environment()
			return env != nil
		})
		return env, err
	})
}

func (r *Runner) wait(ctx context.Context, op string, ready func() bool) error {
	err := workflow.Poll(ctx, r.poll, ready)
	if errors.Is(err, workflow.ErrPollExhausted) {
		return &identity.TimeoutError{Op: op, Err: err}
	}
	return err
}

// CreateSignIn starts a sign-in attempt.
func (r *Runner) CreateSignIn(svc identity.SignInService, p identity.CreateSignInParams) Task[*identity.Resource] {
	return run(r, NameCreateSignIn, strategyAttr(p.Strategy), func(ctx context.Context) (*identity.Resource, error) {
		return svc.Create(ctx, p)
	})
}

// PrepareFirstFactor asks the service to get a first factor ready, e.g. send an email code.
func (r *Runner) PrepareFirstFactor(svc identity.SignInService, id string, p identity.PrepareFactorParams) Task[*identity.Resource] {
	return run(r, NamePrepareFirstFactor, strategyAttr(p.Strategy), func(ctx context.Context) (*identity.Resource, error) {
		return svc.PrepareFirstFactor(ctx, id, p)
	})
}

// AttemptFirstFactor checks a password or code against the first factor.
func (r *Runner) AttemptFirstFactor(svc identity.SignInService, id string, p identity.AttemptFactorParams) Task[*identity.Resource] {
	return run(r, NameAttemptFirstFactor, strategyAttr(p.Strategy), func(ctx context.Context) (*identity.Resource, error) {
		return svc.AttemptFirstFactor(ctx, id, p)
	})
}

// PrepareSecondFactor gets the second factor ready.
func (r *Runner) PrepareSecondFactor(svc identity.SignInService, id string, p identity.PrepareFactorParams) Task[*identity.Resource] {
	return run(r, NamePrepareSecondFactor, strategyAttr(p.Strategy), func(ctx context.Context) (*identity.Resource, error) {
		return svc.PrepareSecondFactor(ctx, id, p)
	})
}

// AttemptSecondFactor checks the second factor code.
func (r *Runner) AttemptSecondFactor(svc identity.SignInService, id string, p identity.AttemptFactorParams) Task[*identity.Resource] {
	return run(r, NameAttemptSecondFactor, strategyAttr(p.Strategy), func(ctx context.Context) (*identity.Resource, error) {
		return svc.AttemptSecondFactor(ctx, id, p)
	})
}

// CreateSignUp starts a sign-up attempt.
func (r *Runner) CreateSignUp(svc identity.SignUpService, p identity.CreateSignUpParams) Task[*identity.Resource] {
	return run(r, NameCreateSignUp, nil, func(ctx context.Context) (*identity.Resource, error) {
		return svc.Create(ctx, p)
	})
}

// PrepareVerification sends a verification code for one unverified field.
func (r *Runner) PrepareVerification(svc identity.SignUpService, id string, p identity.VerificationParams) Task[*identity.Resource] {
	return run(r, NamePrepareVerification, strategyAttr(p.Strategy), func(ctx context.Context) (*identity.Resource, error) {
		return svc.PrepareVerification(ctx, id, p)
	})
}

// AttemptVerification checks a verification code.
func (r *Runner) AttemptVerification(svc identity.SignUpService, id string, p identity.VerificationParams) Task[*identity.Resource] {
	return run(r, NameAttemptVerification, strategyAttr(p.Strategy), func(ctx context.Context) (*identity.Resource, error) {
		return svc.AttemptVerification(ctx, id, p)
	})
}

// AuthenticateWithRedirect starts an OAuth redirect. In a browser host it
// usually never resolves because the page navigates away.
func (r *Runner) AuthenticateWithRedirect(svc Redirector, p identity.RedirectParams) Task[struct{}] {
	return run(r, NameAuthenticateWithRedirect, strategyAttr(p.Strategy), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, svc.AuthenticateWithRedirect(ctx, p)
	})
}

// HandleRedirectCallback exchanges the parameters of an SSO callback for a resource.
func (r *Runner) HandleRedirectCallback(c identity.Client, p identity.RedirectCallbackParams) Task[*identity.Resource] {
	return run(r, NameHandleRedirectCallback, nil, func(ctx context.Context) (*identity.Resource, error) {
		return c.HandleRedirectCallback(ctx, p)
	})
}

func strategyAttr(s identity.Strategy) []attribute.KeyValue {
	if s == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String(AttrStrategy, string(s))}
}
