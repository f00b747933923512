package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"rpcdispatch/internal/execution"
	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/rpccontext"
)

// DefaultTimeout is the dispatch budget used when none is configured
const DefaultTimeout = 5 * time.Second

// Observer records dispatch outcomes
type Observer interface {
	ObserveDispatch(outcome string, elapsed time.Duration)
}

// RunnerConfig holds the optional collaborators of a Runner
type RunnerConfig struct {
	Timeout   time.Duration
	Responder ErrorResponder
	Tracer    trace.Tracer
	Observer  Observer
	Logger    zerolog.Logger
}

// Runner executes one request per Dispatch call under a fixed time budget
type Runner struct {
	factory   ExecutorFactory
	responder ErrorResponder
	timeout   time.Duration
	tracer    trace.Tracer
	observer  Observer
	logger    zerolog.Logger
}

// NewRunner creates a Runner
func NewRunner(factory ExecutorFactory, cfg RunnerConfig) *Runner {
	r := &Runner{
		factory:   factory,
		responder: cfg.Responder,
		timeout:   cfg.Timeout,
		tracer:    cfg.Tracer,
		observer:  cfg.Observer,
		logger:    cfg.Logger.With().Str("component", "dispatch").Logger(),
	}
	if r.responder == nil {
		r.responder = JSONResponder{}
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("")
	}
	return r
}

// Timeout returns the dispatch budget
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// panicError carries a value recovered from a panic
type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Dispatch classifies the request, runs its executor and makes sure exactly
// one terminal response is produced. The budget starts when Dispatch is
// entered. On failure the runner takes the response over unless the
// executor has started writing. The response is sealed when Dispatch
// returns: an executor that outlives the budget can no longer write to it,
// and one caught mid-write leaves the response Aborted.
func (r *Runner) Dispatch(ctx context.Context, rc *rpccontext.Context) (outcome Outcome) {
	start := time.Now()
	deadline := start.Add(r.timeout)
	method := execution.UnknownMethod

	ctx, span := r.tracer.Start(ctx, "rpc.dispatch")
	defer func() {
		span.SetAttributes(
			attribute.String("rpc.method", method),
			attribute.String("dispatch.outcome", outcome.String()),
		)
		if outcome != Success {
			span.SetStatus(codes.Error, outcome.String())
		}
		span.End()

		if r.observer != nil {
			r.observer.ObserveDispatch(outcome.String(), time.Since(start))
		}
	}()
	if rc != nil && rc.Response != nil {
		defer rc.Response.Seal()
	}

	exec, err := r.prepare(rc)
	if err != nil {
		r.fail(rc, method, UnexpectedFailure, err)
		return UnexpectedFailure
	}
	if exec == nil {
		r.fail(rc, method, NoExecutor, errors.New("request is neither an object nor an array"))
		return NoExecutor
	}
	method = r.methodName(exec)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- &panicError{value: p}
			}
		}()
		done <- exec.Execute(execCtx)
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case err := <-done:
		return r.complete(ctx, rc, method, err)
	case <-timer.C:
		select {
		case err := <-done:
			return r.complete(ctx, rc, method, err)
		default:
		}
		cancel()
		r.fail(rc, method, Timeout, fmt.Errorf("execution exceeded %s", r.timeout))
		return Timeout
	}
}

// prepare classifies the request and builds its executor. Panics are
// reported as errors.
func (r *Runner) prepare(rc *rpccontext.Context) (exec Executor, err error) {
	defer func() {
		if p := recover(); p != nil {
			exec = nil
			err = &panicError{value: p}
		}
	}()

	shape := Classify(rc)
	if shape == ShapeUnrecognized {
		return nil, nil
	}
	return r.factory.Create(shape, rc), nil
}

func (r *Runner) methodName(exec Executor) (name string) {
	defer func() {
		if p := recover(); p != nil {
			name = execution.UnknownMethod
		}
	}()
	if name = exec.MethodName(); name == "" {
		return execution.UnknownMethod
	}
	return name
}

// errUnanswered is reported for an executor that returned without error but
// never ended the response
var errUnanswered = errors.New("executor returned without ending the response")

// complete maps the executor's result to an outcome
func (r *Runner) complete(ctx context.Context, rc *rpccontext.Context, method string, err error) Outcome {
	if err == nil {
		if rc.Response == nil || rc.Response.Ended() {
			return Success
		}
		r.fail(rc, method, UnexpectedFailure, errUnanswered)
		return UnexpectedFailure
	}

	var pe *panicError
	switch {
	case errors.As(err, &pe):
		r.fail(rc, method, UnexpectedFailure, err)
		return UnexpectedFailure
	case ctx.Err() != nil:
		r.fail(rc, method, Cancelled, err)
		return Cancelled
	default:
		r.fail(rc, method, IOFailure, err)
		return IOFailure
	}
}

// fail logs the failure and writes its error response unless the executor
// has already started writing. An executor that claimed the response but
// wrote nothing loses it here.
func (r *Runner) fail(rc *rpccontext.Context, method string, outcome Outcome, cause error) {
	errType, _ := outcome.ErrorType()

	event := r.logger.Error()
	if outcome == Cancelled {
		event = r.logger.Debug()
	}
	if rc != nil {
		event = event.Dur("age", rc.Age())
	}
	event.
		Err(cause).
		Str("method", method).
		Str("outcome", outcome.String()).
		Str("error_type", errType.String()).
		Msg("dispatch failed")

	if rc == nil || rc.Response == nil {
		return
	}
	w, ok := rc.Response.Preempt()
	if !ok {
		r.logger.Debug().
			Str("method", method).
			Str("outcome", outcome.String()).
			Msg("response already written, error not sent")
		return
	}
	if err := r.responder.WriteError(w, jsonrpc.NewIDNull(), errType); err != nil {
		r.logger.Error().Err(err).Str("method", method).Msg("failed to write error response")
	}
}
