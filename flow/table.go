package flow

import (
	"go.uber.org/zap"

	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/tasks"
	"github.com/im-adarsh/go-authflow/workflow"
)

// States every flow table has.
const (
	StateInit               = "Init"
	StateStartPreparing     = "Start.Preparing"
	StateStartDetermining   = "Start.Determining"
	StateStartIdle          = "Start.Idle"
	StateStartAttempting    = "Start.Attempting"
	StateStartFailure       = "Start.Failure"
	StateSSOCallbackRunning = "SSOCallbackRunning"
	StateInitiatingOAuth    = "InitiatingOAuthAuthentication"
	StateComplete           = "Complete"
)

// Table names the per-flow pieces of the shared states.
type Table struct {
	Runner *tasks.Runner
	Logger *zap.Logger
	// Root is where a session_exists failure sends the host.
	Root string
	// Callback is the SSO callback path handed to the OAuth provider.
	Callback string
	// Redirector picks the service starting an OAuth redirect.
	Redirector func(identity.Client) tasks.Redirector
	// AfterURL is where the host lands once the session is active.
	AfterURL func(identity.Client) string
}

// Define starts a flow table with the shared routes wired in:
//
//   - FIELD.*, ERROR.REPORT and OAUTH.CALLBACK in every state
//   - Init and Start.Preparing, waiting for the client and its environment
//   - Start.Idle and Start.Failure accepting SUBMIT and AUTHENTICATE.OAUTH
//   - Start.Failure handling and RETRY
//   - the SSO callback and OAuth initiation states
//   - Complete activating the session
//
// Start.Determining gets its entry action only; its routing, Start.Attempting
// and the flow's own regions are left to the caller.
func Define(t Table) *workflow.Builder[*Step] {
	is := When
	r := t.Runner
	b := workflow.Define[*Step]().
		WithLogger(workflow.ZapLogger{L: t.Logger}).
		Final(StateComplete)

	b.Any().On(EventFieldAdd).Stay().Activity(ApplyFieldEvent)
	b.Any().On(EventFieldUpdate).Stay().Activity(ApplyFieldEvent)
	b.Any().On(EventFieldRemove).Stay().Activity(ApplyFieldEvent)
	b.Any().On(EventFieldError).Stay().Activity(ApplyFieldEvent)
	b.Any().On(EventErrorReport).Stay().Activity(StoreReportedError)
	b.Any().On(EventOAuthCallback).To(StateSSOCallbackRunning)

	b.OnEnter(StateInit, WaitForClient(r)).
		From(StateInit).Always().If(is(IsClientLoaded), StateStartPreparing).
		From(StateInit).On(DoneSignal(tasks.NameWaitForClient)).To(StateStartPreparing).
		From(StateInit).On(ErrorSignal(tasks.NameWaitForClient)).To(StateStartFailure).Activity(AssignError)

	b.OnEnter(StateStartPreparing, LoadEnvironment(r)).
		From(StateStartPreparing).Always().If(is(IsEnvironmentLoaded), StateStartDetermining).
		From(StateStartPreparing).On(DoneSignal(tasks.NameWaitForEnvironment)).To(StateStartDetermining).Activity(AssignEnvironment).
		From(StateStartPreparing).On(ErrorSignal(tasks.NameWaitForEnvironment)).To(StateStartFailure).Activity(AssignError)

	b.OnEnter(StateStartDetermining, FlagExistingSession).
		From(StateStartIdle, StateStartFailure).On(EventSubmit).To(StateStartAttempting).
		From(StateStartIdle, StateStartFailure).On(EventAuthenticateOAuth).To(StateInitiatingOAuth)

	b.OnEnter(StateStartFailure, HandleFailure(t.Root)).
		From(StateStartFailure).Always().If(is(RecoverableFailure), StateStartIdle).
		From(StateStartFailure).On(EventRetry).To(StateStartPreparing)

	b.OnEnter(StateSSOCallbackRunning, HandleRedirectCallback(r)).
		From(StateSSOCallbackRunning).On(DoneSignal(tasks.NameHandleRedirectCallback)).To(StateStartDetermining).Activity(AssignResource).
		From(StateSSOCallbackRunning).On(ErrorSignal(tasks.NameHandleRedirectCallback)).To(StateStartFailure).Activity(AssignError)

	b.OnEnter(StateInitiatingOAuth, StartRedirect(r, t.Redirector, t.Callback, t.AfterURL)).
		From(StateInitiatingOAuth).On(DoneSignal(tasks.NameAuthenticateWithRedirect)).Stay().
		From(StateInitiatingOAuth).On(ErrorSignal(tasks.NameAuthenticateWithRedirect)).To(StateStartFailure).Activity(AssignError)

	return b.OnEnter(StateComplete, ActivateSession(t.AfterURL))
}
