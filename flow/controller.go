package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/workflow"
)

var (
	// ErrStopped is returned by Send and Start after Stop.
	ErrStopped = errors.New("flow: controller stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("flow: controller already started")
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithErrorHandler receives failures that no transition absorbed, such as a
// non-service error reaching a failure state. The default logs them.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// WithContext sets the parent of the controller lifecycle context.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.parent = ctx }
}

type queued struct {
	ev    Event
	token string
	start bool
}

type invocation struct {
	id     string
	token  string
	ctx    context.Context
	cancel context.CancelFunc
	run    func(ctx context.Context) (any, error)
}

// Controller drives one flow session. Events are queued and applied one at
// a time; effects run after each transition commits. Async invocations run
// on their own goroutines and are cancelled as soon as the flow leaves the
// state that started them.
//
// Callbacks (router, subscribers, error handler) must not call Stop.
type Controller struct {
	id      string
	machine *Machine
	exec    *workflow.Execution[*Step]
	client  identity.Client
	router  Router
	log     *zap.Logger
	onError func(error)
	parent  context.Context

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	fctx     Context
	queue    []queued
	draining bool
	started  bool
	stopped  bool
	inflight map[string]*invocation
	subs     map[int]func(Snapshot)
	nextSub  int
}

// NewController binds m to a host.
func NewController(m *Machine, client identity.Client, router Router, opts ...Option) (*Controller, error) {
	if m == nil || m.Workflow == nil {
		return nil, errors.New("flow: machine is required")
	}
	if client == nil {
		return nil, errors.New("flow: identity client is required")
	}
	if router == nil {
		return nil, errors.New("flow: router is required")
	}
	c := &Controller{
		id:       uuid.NewString(),
		machine:  m,
		client:   client,
		router:   router,
		log:      zap.NewNop(),
		parent:   context.Background(),
		fctx:     Context{Client: client, Router: router},
		inflight: make(map[string]*invocation),
		subs:     make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("flow", m.Name), zap.String("flow_id", c.id))
	if c.onError == nil {
		c.onError = func(err error) { c.log.Error("flow failure", zap.Error(err)) }
	}
	c.rootCtx, c.rootCancel = context.WithCancel(c.parent)
	c.exec = m.Workflow.NewExecution(c.rootCtx, m.Initial, workflow.WithHooks(workflow.ExecutionHooks[*Step]{
		OnTransition: func(_ context.Context, from, to, signal string, _ *Step) {
			c.log.Debug("event applied", zap.String("event", signal), zap.String("from", from), zap.String("to", to))
		},
	}))
	return c, nil
}

// ID identifies the controller in logs.
func (c *Controller) ID() string { return c.id }

// Start enters the initial state.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()
	return c.enqueue(queued{start: true})
}

// Send dispatches ev. A malformed event is rejected with a ValidationError;
// otherwise Send returns once the event and everything it triggered
// synchronously have been applied, or immediately if another goroutine is
// already applying events. Events the current state does not accept are
// ignored.
func (c *Controller) Send(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return c.enqueue(queued{ev: ev})
}

// State returns the current state.
func (c *Controller) State() string { return c.exec.CurrentState() }

// Matches reports whether the current state is region or inside it.
func (c *Controller) Matches(region string) bool { return InRegion(c.State(), region) }

// Snapshot returns the current state and context.
func (c *Controller) Snapshot() Snapshot {
	state := c.exec.CurrentState()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(state)
}

// History returns every event applied so far.
func (c *Controller) History() []workflow.HistoryEntry { return c.exec.History() }

// Await blocks until cond holds for the current state, ctx is done or the
// controller stops.
func (c *Controller) Await(ctx context.Context, cond func(state string) bool) error {
	return c.exec.Await(ctx, cond)
}

// AwaitState waits for one of states.
func (c *Controller) AwaitState(ctx context.Context, states ...string) error {
	return c.Await(ctx, func(s string) bool {
		for _, want := range states {
			if s == want {
				return true
			}
		}
		return false
	})
}

// Wait blocks until no invocation is in flight.
func (c *Controller) Wait() { c.wg.Wait() }

// Subscribe registers fn to receive a snapshot after every applied event.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Stop cancels in-flight invocations, drops queued events and waits for
// the invocation goroutines to return. Late results are discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.queue = nil
	c.cancelInflightLocked()
	c.mu.Unlock()

	c.exec.Cancel()
	c.rootCancel()
	c.wg.Wait()
}

func (c *Controller) enqueue(q queued) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.queue = append(c.queue, q)
	if c.draining {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	c.mu.Unlock()

	c.drain()
	return nil
}

func (c *Controller) drain() {
	for {
		c.mu.Lock()
		if c.stopped || len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		q := c.queue[0]
		c.queue = c.queue[1:]
		if q.token != "" {
			if _, ok := c.inflight[q.token]; !ok {
				c.mu.Unlock()
				c.log.Debug("late result dropped", zap.String("event", q.ev.Type))
				continue
			}
			delete(c.inflight, q.token)
		}
		step := NewStep(c.fctx, q.ev)
		c.mu.Unlock()

		c.apply(q, step)
	}
}

func (c *Controller) apply(q queued, step *Step) {
	before := c.exec.CurrentState()
	var err error
	if q.start {
		err = c.exec.Start(c.rootCtx, step)
	} else {
		if !c.exec.CanReceive(q.ev.Type) {
			c.log.Debug("event ignored", zap.String("event", q.ev.Type), zap.String("state", before))
			return
		}
		err = c.exec.Signal(c.rootCtx, q.ev.Type, step)
	}
	after := c.exec.CurrentState()
	effects := step.Effects()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.fctx = *step.Ctx
	var launches []*invocation
	if q.start || before != after || hasInvoke(effects) {
		c.cancelInflightLocked()
	}
	for _, e := range effects {
		if inv, ok := e.(Invoke); ok {
			launches = append(launches, c.registerLocked(inv))
		}
	}
	snap := c.snapshotLocked(after)
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if err != nil && !errors.Is(err, workflow.ErrExecutionCancelled) {
		c.onError(err)
	}
	for _, e := range effects {
		switch e := e.(type) {
		case Navigate:
			c.navigate(e)
		case Activate:
			c.activate(e)
		}
	}
	for _, inv := range launches {
		c.launch(inv)
	}
	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Controller) navigate(n Navigate) {
	c.log.Debug("navigate", zap.String("path", n.Path), zap.Bool("replace", n.Replace))
	if n.Replace {
		c.router.Replace(n.Path)
		return
	}
	c.router.Push(n.Path)
}

// activate runs on the draining goroutine; a failure is queued as an
// ERROR.REPORT so it lands in the flow context.
func (c *Controller) activate(a Activate) {
	err := c.client.SetActive(c.rootCtx, identity.SetActiveParams{
		SessionID: a.SessionID,
		BeforeEmit: func() error {
			c.navigate(Navigate{Path: a.AfterURL})
			return nil
		},
	})
	if err == nil {
		c.log.Info("session activated", zap.String("session_id", a.SessionID))
		return
	}
	c.onError(err)
	c.mu.Lock()
	if !c.stopped {
		c.queue = append(c.queue, queued{ev: ReportError(err)})
	}
	c.mu.Unlock()
}

func (c *Controller) registerLocked(inv Invoke) *invocation {
	ctx, cancel := context.WithCancel(c.rootCtx)
	i := &invocation{id: inv.ID, token: uuid.NewString(), ctx: ctx, cancel: cancel, run: inv.Run}
	c.inflight[i.token] = i
	return i
}

func (c *Controller) launch(inv *invocation) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		inv.cancel()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer inv.cancel()

		out, err := inv.run(inv.ctx)
		ev := Done(inv.id, out)
		if err != nil {
			ev = Failed(inv.id, err)
		}
		c.log.Debug("invocation settled", zap.String("invocation", inv.id), zap.Error(err))
		_ = c.enqueue(queued{ev: ev, token: inv.token})
	}()
}

func (c *Controller) cancelInflightLocked() {
	for token, inv := range c.inflight {
		inv.cancel()
		delete(c.inflight, token)
		c.log.Debug("invocation cancelled", zap.String("invocation", inv.id))
	}
}

func (c *Controller) snapshotLocked(state string) Snapshot {
	return Snapshot{
		State:       state,
		Fields:      c.fctx.Fields,
		Error:       c.fctx.Error,
		Resource:    c.fctx.Resource,
		Environment: c.fctx.Environment,
		Providers:   c.fctx.ThirdPartyProviders,
	}
}

func hasInvoke(effects []Effect) bool {
	for _, e := range effects {
		if _, ok := e.(Invoke); ok {
			return true
		}
	}
	return false
}
