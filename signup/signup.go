// Package signup declares the sign-up flow table and binds it to a host.
//
// A sign-up collects the account fields in the Start region, creates the
// attempt and then verifies each unverified field in the Verification
// region, one at a time, until the service reports it complete.
package signup

import (
	"go.uber.org/zap"

	"github.com/im-adarsh/go-authflow/flow"
	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/tasks"
)

// States.
const (
	StateInit                   = flow.StateInit
	StateStartPreparing         = flow.StateStartPreparing
	StateStartDetermining       = flow.StateStartDetermining
	StateStartIdle              = flow.StateStartIdle
	StateStartAttempting        = flow.StateStartAttempting
	StateStartFailure           = flow.StateStartFailure
	StateVerificationPreparing  = "Verification.Preparing"
	StateVerificationIdle       = "Verification.Idle"
	StateVerificationAttempting = "Verification.Attempting"
	StateSSOCallbackRunning     = flow.StateSSOCallbackRunning
	StateInitiatingOAuth        = flow.StateInitiatingOAuth
	StateComplete               = flow.StateComplete
)

const (
	RegionStart        = "Start"
	RegionVerification = "Verification"
)

// Form fields read by the flow.
const (
	FieldEmailAddress = "email_address"
	FieldPassword     = "password"
	FieldFirstName    = "first_name"
	FieldLastName     = "last_name"
	FieldUsername     = "username"
	FieldCode         = "code"
)

// Option configures New.
type Option func(*options)

type options struct {
	runner   *tasks.Runner
	paths    flow.Paths
	log      *zap.Logger
	flowOpts []flow.Option
}

// WithRunner sets the task runner. Defaults to tasks.New with the logger.
func WithRunner(r *tasks.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithPaths sets the navigation paths. Defaults to flow.DefaultPaths().
func WithPaths(p flow.Paths) Option {
	return func(o *options) { o.paths = p }
}

// WithLogger sets the logger used by the table and the controller.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFlowOptions passes options through to flow.NewController.
func WithFlowOptions(opts ...flow.Option) Option {
	return func(o *options) { o.flowOpts = append(o.flowOpts, opts...) }
}

// New returns a controller running the sign-up flow for client.
func New(client identity.Client, router flow.Router, opts ...Option) (*flow.Controller, error) {
	o := options{paths: flow.DefaultPaths(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		r, err := tasks.New(tasks.WithLogger(o.log))
		if err != nil {
			return nil, err
		}
		o.runner = r
	}
	m, err := NewMachine(o.runner, o.paths, o.log)
	if err != nil {
		return nil, err
	}
	return flow.NewController(m, client, router, append([]flow.Option{flow.WithLogger(o.log)}, o.flowOpts...)...)
}
