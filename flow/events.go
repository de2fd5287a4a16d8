package flow

import (
	"fmt"
	"strings"

	"github.com/im-adarsh/go-authflow/fields"
	"github.com/im-adarsh/go-authflow/identity"
)

// Event types accepted from the host.
const (
	EventFieldAdd          = "FIELD.ADD"
	EventFieldUpdate       = "FIELD.UPDATE"
	EventFieldRemove       = "FIELD.REMOVE"
	EventFieldError        = "FIELD.ERROR"
	EventSubmit            = "SUBMIT"
	EventRetry             = "RETRY"
	EventAuthenticateOAuth = "AUTHENTICATE.OAUTH"
	EventOAuthCallback     = "OAUTH.CALLBACK"
	EventErrorReport       = "ERROR.REPORT"
)

// DoneSignal is the event type delivered when invocation id resolves.
func DoneSignal(id string) string { return "done." + id }

// ErrorSignal is the event type delivered when invocation id fails.
func ErrorSignal(id string) string { return "error." + id }

// Event is one input to a flow.
type Event struct {
	Type string

	// FIELD.* payload.
	Name       string
	Value      string
	FieldError *identity.ErrorDetail

	// AUTHENTICATE.OAUTH payload.
	Strategy identity.Strategy
	// OAUTH.CALLBACK payload.
	Callback identity.RedirectCallbackParams

	// Output of a done.<id> event.
	Output any
	// Err of an error.<id> or ERROR.REPORT event.
	Err error
}

// AddField builds a FIELD.ADD event.
func AddField(name, value string) Event {
	return Event{Type: EventFieldAdd, Name: name, Value: value}
}

// UpdateField builds a FIELD.UPDATE event.
func UpdateField(name, value string) Event {
	return Event{Type: EventFieldUpdate, Name: name, Value: value}
}

// RemoveField builds a FIELD.REMOVE event.
func RemoveField(name string) Event {
	return Event{Type: EventFieldRemove, Name: name}
}

// SetFieldError builds a FIELD.ERROR event; a nil err clears the error.
func SetFieldError(name string, err *identity.ErrorDetail) Event {
	return Event{Type: EventFieldError, Name: name, FieldError: err}
}

// Submit and Retry build the SUBMIT and RETRY events.
func Submit() Event { return Event{Type: EventSubmit} }
func Retry() Event  { return Event{Type: EventRetry} }

// AuthenticateOAuth starts an OAuth redirect with strategy, e.g. "oauth_google".
func AuthenticateOAuth(strategy identity.Strategy) Event {
	return Event{Type: EventAuthenticateOAuth, Strategy: strategy}
}

// OAuthCallback carries the parameters the provider redirected back with.
func OAuthCallback(params identity.RedirectCallbackParams) Event {
	return Event{Type: EventOAuthCallback, Callback: params}
}

// ReportError stores err as the flow error without changing state.
func ReportError(err error) Event {
	return Event{Type: EventErrorReport, Err: err}
}

// Done is the completion event of invocation id.
func Done(id string, output any) Event {
	return Event{Type: DoneSignal(id), Output: output}
}

// Failed is the failure event of invocation id.
func Failed(id string, err error) Event {
	return Event{Type: ErrorSignal(id), Err: err}
}

// IsFieldEvent reports whether the event targets the field registry.
func (e Event) IsFieldEvent() bool {
	return strings.HasPrefix(e.Type, "FIELD.")
}

// ValidationError reports a malformed event. It is returned to the caller
// that dispatched the event and never reaches the flow.
type ValidationError struct {
	Event string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("flow: invalid %s event: %v", e.Event, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks the payload required by the event type.
func (e Event) Validate() error {
	if e.Type == "" {
		return &ValidationError{Event: "(empty)", Err: fmt.Errorf("event type is required")}
	}
	if e.IsFieldEvent() && e.Name == "" {
		return &ValidationError{Event: e.Type, Err: fields.ErrNameRequired}
	}
	return nil
}
