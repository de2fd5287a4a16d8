package flow

import (
	"context"

	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/workflow"
)

// Guard is a side-effect free predicate over the flow context.
type Guard func(c *Context) bool

// When adapts g to a workflow condition evaluated against the working copy
// of the step being applied.
func When(g Guard) workflow.Condition[*Step] {
	return func(_ context.Context, s *Step) bool { return g(s.Ctx) }
}

// IsClientLoaded reports whether the identity client finished loading.
func IsClientLoaded(c *Context) bool {
	return c.Client != nil && c.Client.Loaded()
}

// IsEnvironmentLoaded reports whether the environment snapshot was captured.
func IsEnvironmentLoaded(c *Context) bool {
	return c.Environment != nil
}

// IsLoggedIn reports whether the client already has a signed-in user.
func IsLoggedIn(c *Context) bool {
	return c.Client != nil && c.Client.User() != nil
}

// IsSingleSessionMode reports whether the tenant allows one session at a time.
func IsSingleSessionMode(c *Context) bool {
	return c.Environment != nil && c.Environment.AuthConfig.SingleSessionMode
}

// HasResource reports whether an attempt has produced a resource.
func HasResource(c *Context) bool {
	return c.Resource != nil
}

func statusIs(status identity.Status) Guard {
	return func(c *Context) bool { return c.Resource != nil && c.Resource.Status == status }
}

// Status guards over the current resource.
var (
	IsComplete        Guard = statusIs(identity.StatusComplete)
	NeedsFirstFactor  Guard = statusIs(identity.StatusNeedsFirstFactor)
	NeedsSecondFactor Guard = statusIs(identity.StatusNeedsSecondFactor)
)

// NeedsVerification reports a sign-up resource still waiting on field
// verification.
func NeedsVerification(c *Context) bool {
	return c.Resource != nil &&
		c.Resource.Status == identity.StatusMissingRequirements &&
		len(c.Resource.UnverifiedFields) > 0
}

// HasServiceError reports whether the flow error is an identity.APIError.
func HasServiceError(c *Context) bool {
	_, ok := identity.AsAPIError(c.Error)
	return ok
}

// HasServiceErrorCode reports whether the flow error carries code.
func HasServiceErrorCode(code string) Guard {
	return func(c *Context) bool {
		apiErr, ok := identity.AsAPIError(c.Error)
		return ok && apiErr.HasCode(code)
	}
}

// And holds when every guard holds.
func And(guards ...Guard) Guard {
	return func(c *Context) bool {
		for _, g := range guards {
			if !g(c) {
				return false
			}
		}
		return true
	}
}

// Not negates g.
func Not(g Guard) Guard {
	return func(c *Context) bool { return !g(c) }
}
