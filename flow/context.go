// Package flow is the runtime shared by the sign-in and sign-up flows: the
// flow context, the events a host dispatches, the guards and actions the
// state tables are declared with, and the Controller that drives a table.
//
// A transition never performs side effects itself. It updates a working
// copy of the Context and records Effects (navigate, activate a session,
// invoke an async task) that the Controller executes once the transition has
// been committed:
//
//	ctrl, err := signin.New(client, router)
//	if err != nil { ... }
//	_ = ctrl.Start()
//	_ = ctrl.Send(flow.AddField("identifier", "a@b.com"))
//	_ = ctrl.Send(flow.AddField("password", "hunter2"))
//	_ = ctrl.Send(flow.Submit())
package flow

import (
	"github.com/im-adarsh/go-authflow/fields"
	"github.com/im-adarsh/go-authflow/identity"
)

// Router is the host navigation handle.
type Router interface {
	Push(path string)
	Replace(path string)
}

// Context is the state a flow carries between transitions. Actions only
// ever replace its fields; values reachable from it are never mutated in
// place, so a copy taken before a transition stays valid.
type Context struct {
	Client      identity.Client
	Environment *identity.Environment
	// Resource is nil until the first successful attempt.
	Resource *identity.Resource
	Fields   fields.Registry
	// Error is the last captured failure.
	Error               error
	Router              Router
	ThirdPartyProviders []identity.OAuthProvider
}

// Paths are the host routes a flow navigates between.
type Paths struct {
	Root        string
	SignIn      string
	FactorOne   string
	FactorTwo   string
	SSOCallback string
	SignUp      string
	Verify      string
	// SignUpSSOCallback is where sign-up OAuth redirects return.
	SignUpSSOCallback string
}

// DefaultPaths returns the routes used when the host does not configure any.
func DefaultPaths() Paths {
	return Paths{
		Root:        "/",
		SignIn:      "/sign-in",
		FactorOne:   "/sign-in/factor-one",
		FactorTwo:   "/sign-in/factor-two",
		SSOCallback: "/sign-in/sso-callback",
		SignUp:      "/sign-up",
		Verify:      "/sign-up/verify",

		SignUpSSOCallback: "/sign-up/sso-callback",
	}
}

// Snapshot is a read-only view of a Controller for rendering.
type Snapshot struct {
	State       string
	Fields      fields.Registry
	Error       error
	Resource    *identity.Resource
	Environment *identity.Environment
	Providers   []identity.OAuthProvider
}
