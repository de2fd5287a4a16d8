// Package tasks wraps every asynchronous identity operation the flows use in
// a typed Task. A Task resolves to its output or to a failure that is one of
// *identity.APIError, *identity.TimeoutError, *identity.TransportError or a
// context error; anything else is normalized into a TransportError.
//
// Every run is traced and counted through OpenTelemetry. Transport failures
// can optionally be retried with a workflow.RetryPolicy.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/workflow"
)

const instrumentationName = "github.com/im-adarsh/go-authflow/tasks"

// Span and metric attribute keys.
const (
	AttrTask     = "authflow.task"
	AttrOutcome  = "authflow.task.outcome"
	AttrStatus   = "authflow.resource.status"
	AttrStrategy = "authflow.strategy"
)

// Task is one asynchronous operation.
type Task[Out any] func(ctx context.Context) (Out, error)

// Option configures a Runner.
type Option func(*Runner)

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) { r.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Runner) { r.meter = mp.Meter(instrumentationName) }
}

// WithRetry retries transport failures according to policy.
func WithRetry(policy workflow.RetryPolicy) Option {
	return func(r *Runner) { r.retry = &policy }
}

// WithPollPolicy sets the readiness wait bounds.
func WithPollPolicy(policy workflow.PollPolicy) Option {
	return func(r *Runner) { r.poll = policy }
}

// WithClock sets the clock used by readiness waits and retries that do not
// carry their own.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// Runner builds Tasks sharing one telemetry and retry setup.
type Runner struct {
	tracer trace.Tracer
	meter  metric.Meter
	retry  *workflow.RetryPolicy
	poll   workflow.PollPolicy
	clock  clockwork.Clock
	log    *zap.Logger

	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// New returns a Runner. It fails only if the metric instruments cannot be
// created.
func New(opts ...Option) (*Runner, error) {
	r := &Runner{
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
		meter:  otel.GetMeterProvider().Meter(instrumentationName),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock != nil {
		if r.poll.Clock == nil {
			r.poll.Clock = r.clock
		}
		if r.retry != nil && r.retry.Clock == nil {
			r.retry.Clock = r.clock
		}
	}

	var err error
	r.runs, err = r.meter.Int64Counter("authflow.task.runs",
		metric.WithDescription("Identity operations run by the flows, by task and outcome."))
	if err != nil {
		return nil, err
	}
	r.duration, err = r.meter.Float64Histogram("authflow.task.duration",
		metric.WithDescription("Duration of identity operations."), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Must is New that panics on error.
func Must(opts ...Option) *Runner {
	r, err := New(opts...)
	if err != nil {
		panic("tasks.Must: " + err.Error())
	}
	return r
}

func run[Out any](r *Runner, name string, attrs []attribute.KeyValue, fn func(ctx context.Context) (Out, error)) Task[Out] {
	return func(ctx context.Context) (Out, error) {
		ctx, span := r.tracer.Start(ctx, "authflow."+name,
			trace.WithAttributes(append(attrs, attribute.String(AttrTask, name))...))
		defer span.End()
		start := time.Now()

		var out Out
		call := func(ctx context.Context, _ struct{}) error {
			var err error
			out, err = fn(ctx)
			return Normalize(name, err)
		}
		if r.retry != nil {
			policy := *r.retry
			policy.Retryable = IsTransport
			call = workflow.Retry(call, policy)
		}
		err := call(ctx, struct{}{})

		outcome := Outcome(err)
		metricAttrs := metric.WithAttributes(attribute.String(AttrTask, name), attribute.String(AttrOutcome, outcome))
		r.runs.Add(ctx, 1, metricAttrs)
		r.duration.Record(ctx, time.Since(start).Seconds(), metricAttrs)
		span.SetAttributes(attribute.String(AttrOutcome, outcome))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Debug("task failed", zap.String("task", name), zap.String("outcome", outcome), zap.Error(err))
			var zero Out
			return zero, err
		}
		if res, ok := any(out).(*identity.Resource); ok && res != nil {
			span.SetAttributes(attribute.String(AttrStatus, string(res.Status)))
		}
		span.SetStatus(codes.Ok, "")
		return out, nil
	}
}

// Normalize maps err onto the failure taxonomy. Recognized failures and
// context errors pass through; anything else becomes a TransportError.
func Normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		apiErr       *identity.APIError
		timeoutErr   *identity.TimeoutError
		transportErr *identity.TransportError
	)
	switch {
	case errors.As(err, &apiErr), errors.As(err, &timeoutErr), errors.As(err, &transportErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &identity.TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var transportErr *identity.TransportError
	return errors.As(err, &transportErr)
}

// Outcome classifies err for telemetry: "ok", "service_error", "timeout",
// "transport_error" or "cancelled".
func Outcome(err error) string {
	var apiErr *identity.APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr):
		return "service_error"
	case errors.Is(err, identity.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "transport_error"
	}
}
