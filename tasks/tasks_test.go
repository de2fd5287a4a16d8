package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/identity/mocks"
	"github.com/im-adarsh/go-authflow/tasks"
	"github.com/im-adarsh/go-authflow/workflow"
)

var ctx = context.Background()

type telemetry struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func newRunner(t *testing.T, opts ...tasks.Option) (*tasks.Runner, telemetry) {
	t.Helper()
	tel := telemetry{spans: tracetest.NewSpanRecorder(), reader: sdkmetric.NewManualReader()}
	opts = append([]tasks.Option{
		tasks.WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(tel.spans))),
		tasks.WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(tel.reader))),
	}, opts...)
	r, err := tasks.New(opts...)
	require.NoError(t, err)
	return r, tel
}

func (tel telemetry) runs(t *testing.T) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tel.reader.Collect(ctx, &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "authflow.task.runs" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				task, _ := dp.Attributes.Value(attribute.Key(tasks.AttrTask))
				outcome, _ := dp.Attributes.Value(attribute.Key(tasks.AttrOutcome))
				out[task.AsString()+"/"+outcome.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestCreateSignIn_Success(t *testing.T) {
	r, tel := newRunner(t)
	svc := mocks.NewSignInService(t)
	params := identity.CreateSignInParams{Identifier: "a@b.com", Password: "x", Strategy: identity.StrategyPassword}
	svc.On("Create", mock.Anything, params).
		Return(&identity.Resource{ID: "sia_1", Status: identity.StatusComplete, CreatedSessionID: "sess_1"}, nil).Once()

	res, err := r.CreateSignIn(svc, params)(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess_1", res.CreatedSessionID)

	spans := tel.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "authflow.create_sign_in", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(tasks.AttrStatus, "complete"))
	assert.Contains(t, spans[0].Attributes(), attribute.String(tasks.AttrStrategy, "password"))

	assert.Equal(t, map[string]int64{"create_sign_in/ok": 1}, tel.runs(t))
}

func TestServiceErrorPassesThrough(t *testing.T) {
	r, tel := newRunner(t)
	svc := mocks.NewSignInService(t)
	apiErr := identity.NewAPIError(400, identity.CodeSessionExists, "already signed in")
	svc.On("Create", mock.Anything, mock.Anything).Return(nil, apiErr).Once()

	_, err := r.CreateSignIn(svc, identity.CreateSignInParams{Identifier: "a@b.com"})(ctx)
	assert.Same(t, apiErr, err)

	spans := tel.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, map[string]int64{"create_sign_in/service_error": 1}, tel.runs(t))
}

func TestUnknownErrorBecomesTransportError(t *testing.T) {
	r, _ := newRunner(t)
	svc := mocks.NewSignInService(t)
	cause := errors.New("connection reset by peer")
	svc.On("AttemptFirstFactor", mock.Anything, "sia_1", mock.Anything).Return(nil, cause).Once()

	_, err := r.AttemptFirstFactor(svc, "sia_1", identity.AttemptFactorParams{Strategy: identity.StrategyPassword})(ctx)
	var transport *identity.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, tasks.NameAttemptFirstFactor, transport.Op)
	assert.ErrorIs(t, err, cause)
}

func TestRetryOnlyRetriesTransportErrors(t *testing.T) {
	r, tel := newRunner(t, tasks.WithRetry(workflow.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}))
	svc := mocks.NewSignInService(t)
	svc.On("PrepareFirstFactor", mock.Anything, "sia_1", mock.Anything).Return(nil, errors.New("eof")).Twice()
	svc.On("PrepareFirstFactor", mock.Anything, "sia_1", mock.Anything).
		Return(&identity.Resource{ID: "sia_1", Status: identity.StatusNeedsFirstFactor}, nil).Once()

	res, err := r.PrepareFirstFactor(svc, "sia_1", identity.PrepareFactorParams{Strategy: identity.StrategyEmailCode})(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusNeedsFirstFactor, res.Status)
	assert.Equal(t, map[string]int64{"prepare_first_factor/ok": 1}, tel.runs(t))

	codeErr := identity.NewAPIError(422, identity.CodeCodeIncorrect, "Incorrect code.")
	svc.On("AttemptSecondFactor", mock.Anything, "sia_1", mock.Anything).Return(nil, codeErr).Once()
	_, err = r.AttemptSecondFactor(svc, "sia_1", identity.AttemptFactorParams{Code: "1"})(ctx)
	assert.Same(t, codeErr, err)
}

func TestWaitForClient(t *testing.T) {
	r, _ := newRunner(t, tasks.WithPollPolicy(workflow.PollPolicy{Interval: time.Millisecond, MaxAttempts: 10}))
	c := mocks.NewClient(t)
	c.On("Loaded").Return(false).Twice()
	c.On("Loaded").Return(true).Once()

	_, err := r.WaitForClient(c)(ctx)
	assert.NoError(t, err)
}

func TestWaitForEnvironment_Timeout(t *testing.T) {
	r, tel := newRunner(t, tasks.WithPollPolicy(workflow.PollPolicy{Interval: time.Millisecond, MaxAttempts: 3}))
	c := mocks.NewClient(t)
	c.On("Environment").Return(nil).Times(3)

	_, err := r.WaitForEnvironment(c)(ctx)
	assert.ErrorIs(t, err, identity.ErrTimeout)
	assert.ErrorIs(t, err, workflow.ErrPollExhausted)
	assert.Equal(t, map[string]int64{"wait_for_environment/timeout": 1}, tel.runs(t))
}

func TestWaitForEnvironment_ReturnsSnapshot(t *testing.T) {
	r, _ := newRunner(t, tasks.WithPollPolicy(workflow.PollPolicy{Interval: time.Millisecond}))
	env := &identity.Environment{AuthConfig: identity.AuthConfig{SingleSessionMode: true}}
	c := mocks.NewClient(t)
	c.On("Environment").Return(env).Once()

	got, err := r.WaitForEnvironment(c)(ctx)
	require.NoError(t, err)
	assert.Same(t, env, got)
}

func TestCancelledContext(t *testing.T) {
	r, tel := newRunner(t)
	c := mocks.NewClient(t)
	cctx, cancel := context.WithCancel(ctx)
	cancel()

	_, err := r.WaitForClient(c)(cctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, map[string]int64{"wait_for_client/cancelled": 1}, tel.runs(t))
}

func TestRedirectTasks(t *testing.T) {
	r, _ := newRunner(t)
	signUps := mocks.NewSignUpService(t)
	params := identity.RedirectParams{Strategy: identity.OAuthStrategy("google")}
	signUps.On("AuthenticateWithRedirect", mock.Anything, params).Return(nil).Once()
	_, err := r.AuthenticateWithRedirect(signUps, params)(ctx)
	require.NoError(t, err)

	c := mocks.NewClient(t)
	cb := identity.RedirectCallbackParams{State: "s", Code: "c"}
	c.On("HandleRedirectCallback", mock.Anything, cb).
		Return(&identity.Resource{Status: identity.StatusNeedsSecondFactor}, nil).Once()
	res, err := r.HandleRedirectCallback(c, cb)(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusNeedsSecondFactor, res.Status)
}

func TestSignUpTasks(t *testing.T) {
	r, _ := newRunner(t)
	svc := mocks.NewSignUpService(t)
	svc.On("Create", mock.Anything, mock.Anything).
		Return(&identity.Resource{ID: "sua_1", Status: identity.StatusMissingRequirements, UnverifiedFields: []string{"email_address"}}, nil).Once()
	svc.On("PrepareVerification", mock.Anything, "sua_1", mock.Anything).
		Return(&identity.Resource{ID: "sua_1", Status: identity.StatusMissingRequirements}, nil).Once()
	svc.On("AttemptVerification", mock.Anything, "sua_1", mock.Anything).
		Return(&identity.Resource{ID: "sua_1", Status: identity.StatusComplete, CreatedSessionID: "sess_9"}, nil).Once()

	res, err := r.CreateSignUp(svc, identity.CreateSignUpParams{EmailAddress: "n@b.com", Password: "p"})(ctx)
	require.NoError(t, err)
	_, err = r.PrepareVerification(svc, res.ID, identity.VerificationParams{Field: "email_address"})(ctx)
	require.NoError(t, err)
	res, err = r.AttemptVerification(svc, res.ID, identity.VerificationParams{Field: "email_address", Code: "123456"})(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess_9", res.CreatedSessionID)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", tasks.Outcome(nil))
	assert.Equal(t, "timeout", tasks.Outcome(&identity.TimeoutError{Op: "x"}))
	assert.Equal(t, "transport_error", tasks.Outcome(errors.New("x")))
	assert.Equal(t, "cancelled", tasks.Outcome(context.DeadlineExceeded))
}
