package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes the flow controllers branch on.
const (
	CodeSessionExists      = "session_exists"
	CodeIdentifierNotFound = "form_identifier_not_found"
	CodePasswordIncorrect  = "form_password_incorrect"
	CodeCodeIncorrect      = "form_code_incorrect"
	CodeParamMissing       = "form_param_missing"
	CodeIdentifierExists   = "form_identifier_exists"
	CodeOAuthState         = "oauth_state_invalid"
	CodeResourceNotFound   = "resource_not_found"
)

// ErrTimeout is matched by every TimeoutError.
var ErrTimeout = errors.New("identity: timed out")

// ErrorMeta carries optional structured data on an ErrorDetail.
type ErrorMeta struct {
	// ParamName names the form field the error applies to.
	ParamName string `json:"param_name,omitempty"`
}

// ErrorDetail is one entry of a service error.
type ErrorDetail struct {
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	LongMessage string    `json:"long_message,omitempty"`
	Meta        ErrorMeta `json:"meta,omitempty"`
}

func (d ErrorDetail) Error() string {
	if d.LongMessage != "" {
		return d.Code + ": " + d.LongMessage
	}
	return d.Code + ": " + d.Message
}

// APIError is a structured failure returned by the identity service.
type APIError struct {
	Status int           `json:"status"`
	Errors []ErrorDetail `json:"errors"`
}

// NewAPIError builds an APIError with a single entry.
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Errors: []ErrorDetail{{Code: code, Message: message}}}
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("identity: service error (status=%d)", e.Status)
	}
	msgs := make([]string, len(e.Errors))
	for i, d := range e.Errors {
		msgs[i] = d.Error()
	}
	return fmt.Sprintf("identity: service error (status=%d): %s", e.Status, strings.Join(msgs, "; "))
}

// HasCode reports whether any entry carries code.
func (e *APIError) HasCode(code string) bool {
	for _, d := range e.Errors {
		if d.Code == code {
			return true
		}
	}
	return false
}

// FieldErrors returns the entries scoped to a form field, keyed by
// ParamName. The first entry for a field wins.
func (e *APIError) FieldErrors() map[string]ErrorDetail {
	out := make(map[string]ErrorDetail)
	for _, d := range e.Errors {
		if d.Meta.ParamName == "" {
			continue
		}
		if _, ok := out[d.Meta.ParamName]; !ok {
			out[d.Meta.ParamName] = d
		}
	}
	return out
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// TransportError is a failure without structured codes, e.g. a dropped
// connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("identity: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that a bounded wait was exceeded.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("identity: %s: timed out", e.Op)
	}
	return fmt.Sprintf("identity: %s: timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
