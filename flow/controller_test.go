package flow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/im-adarsh/go-authflow/flow"
	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/identity/mocks"
	"github.com/im-adarsh/go-authflow/workflow"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Push(path string)    { r.add("push " + path) }
func (r *recorder) Replace(path string) { r.add("replace " + path) }

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// gate is a task whose result is released by the test. A stubborn gate
// ignores cancellation, so its result arrives after the flow moved on.
type gate struct {
	stubborn bool
	started  chan struct{}
	release  chan string
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 4), release: make(chan string, 4)}
}

func (g *gate) task(ctx context.Context) (string, error) {
	g.started <- struct{}{}
	if g.stubborn {
		return <-g.release, nil
	}
	select {
	case v := <-g.release:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

const (
	stateIdle = "Idle"
	stateBusy = "Busy"
	stateDone = "Done"
)

// newTestMachine: Idle --SUBMIT--> Busy (invokes "slow") --done.slow--> Done.
// RETRY leaves Busy, dropping the invocation.
func newTestMachine(t *testing.T, g *gate) *flow.Machine {
	t.Helper()
	wf, err := workflow.Define[*flow.Step]().
		Any().On(flow.EventFieldAdd).Stay().Activity(flow.ApplyFieldEvent).
		Any().On(flow.EventErrorReport).Stay().Activity(flow.StoreReportedError).
		OnEnter(stateBusy, func(_ context.Context, s *flow.Step) error {
			flow.InvokeTask(s, "slow", g.task)
			return nil
		}).
		OnEnter(stateDone, flow.PushPath("/done")).
		From(stateIdle).On(flow.EventSubmit).To(stateBusy).
		From(stateBusy).On(flow.EventRetry).To(stateIdle).
		From(stateBusy).On(flow.DoneSignal("slow")).To(stateDone).
		Activity(func(_ context.Context, s *flow.Step) error {
			s.Ctx.Fields = s.Ctx.Fields.Update("result", s.Event.Output.(string))
			return nil
		}).
		Build()
	require.NoError(t, err)
	return &flow.Machine{Name: "test", Initial: stateIdle, Workflow: wf}
}

func newTestController(t *testing.T, g *gate, opts ...flow.Option) (*flow.Controller, *recorder) {
	t.Helper()
	router := &recorder{}
	ctrl, err := flow.NewController(newTestMachine(t, g), mocks.NewClient(t), router, opts...)
	require.NoError(t, err)
	t.Cleanup(ctrl.Stop)
	require.NoError(t, ctrl.Start())
	return ctrl, router
}

func TestController_InvocationResultApplied(t *testing.T) {
	g := newGate()
	ctrl, router := newTestController(t, g)
	require.NoError(t, ctrl.Send(flow.AddField("result", "")))

	require.NoError(t, ctrl.Send(flow.Submit()))
	<-g.started
	assert.Equal(t, stateBusy, ctrl.State())

	g.release <- "ok"
	ctrl.Wait()
	assert.Equal(t, stateDone, ctrl.State())
	assert.Equal(t, "ok", ctrl.Snapshot().Fields.Value("result"))
	assert.Equal(t, []string{"push /done"}, router.all())
}

func TestController_LateResultDropped(t *testing.T) {
	g := newGate()
	g.stubborn = true
	ctrl, router := newTestController(t, g)

	require.NoError(t, ctrl.Send(flow.Submit()))
	<-g.started
	require.NoError(t, ctrl.Send(flow.Retry()))
	require.Equal(t, stateIdle, ctrl.State())

	g.release <- "late"
	ctrl.Wait()
	assert.Equal(t, stateIdle, ctrl.State())
	assert.Empty(t, router.all())
	for _, h := range ctrl.History() {
		assert.NotEqual(t, flow.DoneSignal("slow"), h.Signal)
	}
}

func TestController_ReenteringStateDropsPreviousInvocation(t *testing.T) {
	g := newGate()
	g.stubborn = true
	ctrl, _ := newTestController(t, g)

	require.NoError(t, ctrl.Send(flow.Submit()))
	<-g.started
	require.NoError(t, ctrl.Send(flow.Retry()))
	require.NoError(t, ctrl.Send(flow.Submit()))
	<-g.started

	g.release <- "first"
	g.release <- "second"
	ctrl.Wait()
	assert.Equal(t, stateDone, ctrl.State())
	// Either goroutine may read either value; only one result is applied.
	var done int
	for _, h := range ctrl.History() {
		if h.Signal == flow.DoneSignal("slow") {
			done++
		}
	}
	assert.Equal(t, 1, done)
}

func TestController_FieldEventsWhileBusy(t *testing.T) {
	g := newGate()
	ctrl, _ := newTestController(t, g)

	require.NoError(t, ctrl.Send(flow.Submit()))
	<-g.started
	require.NoError(t, ctrl.Send(flow.AddField("identifier", "a@b.com")))
	assert.Equal(t, stateBusy, ctrl.State())

	g.release <- "ok"
	ctrl.Wait()
	assert.Equal(t, stateDone, ctrl.State())
	assert.Equal(t, "a@b.com", ctrl.Snapshot().Fields.Value("identifier"))
}

func TestController_UnacceptedEventIgnored(t *testing.T) {
	ctrl, _ := newTestController(t, newGate())
	require.NoError(t, ctrl.Send(flow.Retry()))
	require.NoError(t, ctrl.Send(flow.OAuthCallback(identity.RedirectCallbackParams{})))
	assert.Equal(t, stateIdle, ctrl.State())
	assert.Len(t, ctrl.History(), 1) // the start entry
}

func TestController_StopCancelsAndRejects(t *testing.T) {
	g := newGate()
	ctrl, _ := newTestController(t, g)
	require.NoError(t, ctrl.Send(flow.Submit()))
	<-g.started

	ctrl.Stop()
	g.release <- "after stop"

	assert.Equal(t, stateBusy, ctrl.State())
	assert.ErrorIs(t, ctrl.Send(flow.Submit()), flow.ErrStopped)
	assert.ErrorIs(t, ctrl.Start(), flow.ErrAlreadyStarted)
	ctrl.Stop()
}

func TestController_AwaitReturnsOnStop(t *testing.T) {
	ctrl, _ := newTestController(t, newGate())
	errs := make(chan error, 1)
	go func() { errs <- ctrl.AwaitState(context.Background(), stateDone) }()

	ctrl.Stop()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, workflow.ErrExecutionCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return")
	}
}

func TestController_SubscribeAndErrors(t *testing.T) {
	var (
		mu       sync.Mutex
		states   []string
		reported []error
	)
	ctrl, _ := newTestController(t, newGate(), flow.WithErrorHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}))
	unsubscribe := ctrl.Subscribe(func(s flow.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s.State)
	})

	boom := errors.New("boom")
	require.NoError(t, ctrl.Send(flow.ReportError(boom)))
	require.NoError(t, ctrl.Send(flow.AddField("a", "1")))
	unsubscribe()
	require.NoError(t, ctrl.Send(flow.AddField("b", "2")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{stateIdle, stateIdle}, states)
	assert.Empty(t, reported)
	assert.Equal(t, boom, ctrl.Snapshot().Error)
}

func TestController_ValidationErrorReturned(t *testing.T) {
	ctrl, _ := newTestController(t, newGate())
	var verr *flow.ValidationError
	assert.ErrorAs(t, ctrl.Send(flow.AddField("", "x")), &verr)
	assert.ErrorAs(t, ctrl.Send(flow.Event{}), &verr)
}

func TestNewController_RequiresCollaborators(t *testing.T) {
	m := newTestMachine(t, newGate())
	_, err := flow.NewController(nil, mocks.NewClient(t), &recorder{})
	assert.Error(t, err)
	_, err = flow.NewController(m, nil, &recorder{})
	assert.Error(t, err)
	_, err = flow.NewController(m, mocks.NewClient(t), nil)
	assert.Error(t, err)
}
