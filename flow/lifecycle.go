package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/tasks"
	"github.com/im-adarsh/go-authflow/workflow"
)

// ErrUnhandledStatus is raised when a resource reports a status the current
// state has no route for.
var ErrUnhandledStatus = errors.New("flow: unhandled resource status")

// Guards shared by the sign-in and sign-up tables.
var (
	// SessionExists holds when the flow error is a session_exists service error.
	SessionExists = HasServiceErrorCode(identity.CodeSessionExists)
	// RecoverableFailure holds for service errors the user can correct.
	RecoverableFailure = And(HasServiceError, Not(SessionExists))
	// BlockedBySession holds before any attempt when a user is already
	// signed in and the tenant allows a single session.
	BlockedBySession = And(Not(HasResource), IsLoggedIn, IsSingleSessionMode)
)

// WaitForClient is an entry action invoking the readiness wait unless the
// client is already loaded.
func WaitForClient(r *tasks.Runner) workflow.Activity[*Step] {
	return func(_ context.Context, s *Step) error {
		if !IsClientLoaded(s.Ctx) {
			InvokeTask(s, tasks.NameWaitForClient, r.WaitForClient(s.Ctx.Client))
		}
		return nil
	}
}

// LoadEnvironment is an entry action capturing the environment when the
// client already has it and invoking the environment wait otherwise.
func LoadEnvironment(r *tasks.Runner) workflow.Activity[*Step] {
	return func(ctx context.Context, s *Step) error {
		if s.Ctx.Environment != nil {
			return nil
		}
		if s.Ctx.Client.Environment() != nil {
			return AssignEnvironment(ctx, s)
		}
		InvokeTask(s, tasks.NameWaitForEnvironment, r.WaitForEnvironment(s.Ctx.Client))
		return nil
	}
}

// FlagExistingSession records a session_exists error when BlockedBySession
// holds.
func FlagExistingSession(_ context.Context, s *Step) error {
	if BlockedBySession(s.Ctx) {
		s.Ctx.Error = identity.NewAPIError(http.StatusBadRequest, identity.CodeSessionExists, "You're already signed in.")
	}
	return nil
}

// HandleFailure is the entry action of a failure state. A session_exists
// error sends the host back to root; other service errors are left for
// rendering; anything else is returned unchanged so the controller reports
// it.
func HandleFailure(root string) workflow.Activity[*Step] {
	return func(_ context.Context, s *Step) error {
		switch {
		case SessionExists(s.Ctx):
			s.Replace(root)
			return nil
		case HasServiceError(s.Ctx):
			return nil
		default:
			return s.Ctx.Error
		}
	}
}

// HandleRedirectCallback is the entry action of the SSO callback state. It
// starts a fresh attempt cycle: fields are cleared and the callback
// parameters of the triggering event are exchanged.
func HandleRedirectCallback(r *tasks.Runner) workflow.Activity[*Step] {
	return func(ctx context.Context, s *Step) error {
		if err := ClearFields(ctx, s); err != nil {
			return err
		}
		InvokeTask(s, tasks.NameHandleRedirectCallback, r.HandleRedirectCallback(s.Ctx.Client, s.Event.Callback))
		return nil
	}
}

// StartRedirect is the entry action of the OAuth initiation state.
func StartRedirect(r *tasks.Runner, svc func(identity.Client) tasks.Redirector, callbackPath string, afterURL func(identity.Client) string) workflow.Activity[*Step] {
	return func(_ context.Context, s *Step) error {
		client := s.Ctx.Client
		InvokeTask(s, tasks.NameAuthenticateWithRedirect, r.AuthenticateWithRedirect(svc(client), identity.RedirectParams{
			Strategy:            s.Event.Strategy,
			RedirectURL:         callbackPath,
			RedirectURLComplete: afterURL(client),
		}))
		return nil
	}
}

// ActivateSession is the entry action of a complete state: fields are
// cleared and the created session is activated.
func ActivateSession(afterURL func(identity.Client) string) workflow.Activity[*Step] {
	return func(ctx context.Context, s *Step) error {
		if err := ClearFields(ctx, s); err != nil {
			return err
		}
		if s.Ctx.Resource == nil || s.Ctx.Resource.CreatedSessionID == "" {
			return errors.New("flow: completed without a session")
		}
		s.Activate(s.Ctx.Resource.CreatedSessionID, afterURL(s.Ctx.Client))
		return nil
	}
}

// FlagUnhandledStatus is an entry action for a routing state. When none of
// handled holds it records ErrUnhandledStatus, so the state's Else route
// lands in a failure state with the cause attached.
func FlagUnhandledStatus(handled ...Guard) workflow.Activity[*Step] {
	return func(_ context.Context, s *Step) error {
		for _, g := range handled {
			if g(s.Ctx) {
				return nil
			}
		}
		status := identity.Status("")
		if s.Ctx.Resource != nil {
			status = s.Ctx.Resource.Status
		}
		s.Ctx.Error = fmt.Errorf("%w: %q", ErrUnhandledStatus, status)
		return nil
	}
}
