// Package signin declares the sign-in flow table and binds it to a host.
//
// The flow starts by waiting for the identity client and its environment,
// collects an identifier (and usually a password) in the Start region, then
// walks the FirstFactor and SecondFactor regions the resource asks for.
// OAuth redirects and their callbacks can interrupt it from any state.
// Reaching Complete activates the created session.
package signin

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
	StateFirstFactorPreparing   = "FirstFactor.Preparing"
	StateFirstFactorIdle        = "FirstFactor.Idle"
	StateFirstFactorAttempting  = "FirstFactor.Attempting"
	StateFirstFactorSuccess     = "FirstFactor.Success"
	StateSecondFactorPreparing  = "SecondFactor.Preparing"
	StateSecondFactorIdle       = "SecondFactor.Idle"
	StateSecondFactorAttempting = "SecondFactor.Attempting"
	StateSecondFactorSuccess    = "SecondFactor.Success"
	StateSSOCallbackRunning     = flow.StateSSOCallbackRunning
	StateInitiatingOAuth        = flow.StateInitiatingOAuth
	StateComplete               = flow.StateComplete
)

// Regions, for flow.Controller.Matches.
const (
	RegionStart        = "Start"
	RegionFirstFactor  = "FirstFactor"
	RegionSecondFactor = "SecondFactor"
)

// Form fields read by the flow.
const (
	FieldIdentifier = "identifier"
	FieldPassword   = "password"
	FieldCode       = "code"
	// FieldStrategy selects a factor strategy, e.g. "email_code".
	FieldStrategy = "strategy"
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

// WithPaths sets the host routes. Defaults to flow.DefaultPaths.
func WithPaths(p flow.Paths) Option {
	return func(o *options) { o.paths = p }
}

// WithLogger logs transitions and controller activity.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFlowOptions passes options to the controller.
func WithFlowOptions(opts ...flow.Option) Option {
	return func(o *options) { o.flowOpts = append(o.flowOpts, opts...) }
}

// New returns a controller running the sign-in flow for client. Call Start
// on it to begin.
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
