package cqrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Next continues the middleware chain.
type Next func(ctx context.Context, cmd Command) (*Result, error)

// Middleware intercepts a dispatch. It may change the command before calling
// next, change the result after, return without calling next, or fail.
type Middleware interface {
	Intercept(ctx context.Context, cmd Command, next Next) (*Result, error)
}

type MiddlewareFunc func(ctx context.Context, cmd Command, next Next) (*Result, error)

func (f MiddlewareFunc) Intercept(ctx context.Context, cmd Command, next Next) (*Result, error) {
	return f(ctx, cmd, next)
}

type namedMiddleware struct {
	name string
	MiddlewareFunc
}

func (n namedMiddleware) Name() string { return n.name }

// Named gives fn the name reported in middleware trace events.
func Named(name string, fn MiddlewareFunc) Middleware {
	return namedMiddleware{name: name, MiddlewareFunc: fn}
}

func middlewareName(mw Middleware, i int) string {
	if n, ok := mw.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("middleware[%d]", i)
}

// Dispatcher runs commands through the middleware chain, the pipeline and
// the sinks of every committed event.
type Dispatcher struct {
	log         *slog.Logger
	registry    *Registry
	pipeline    Processor
	sinks       SinkRunner
	middlewares []Middleware
	trace       TraceFunc
	metrics     Metrics
}

func NewDispatcher(registry *Registry, factory HandlerFactory, opts ...DispatcherOption) *Dispatcher {
	options := dispatcherOpts{log: slog.Default(), metrics: NopMetrics()}
	for _, opt := range opts {
		opt.applyToDispatcher(&options)
	}
	if options.pipeline == nil {
		popts := []PipelineOption{WithLog(options.log), WithMetrics(options.metrics)}
		if options.version {
			popts = append(popts, WithVersionCheck())
		}
		options.pipeline = NewPipeline(registry, factory, popts...)
	}
	if options.sinks == nil {
		sopts := []SinkExecutorOption{WithLog(options.log), WithMetrics(options.metrics)}
		if options.failFast {
			sopts = append(sopts, WithFailFast())
		}
		options.sinks = NewSinkExecutor(registry, factory, sopts...)
	}
	return &Dispatcher{
		log:         options.log.With(slog.String("component", "dispatcher")),
		registry:    registry,
		pipeline:    options.pipeline,
		sinks:       options.sinks,
		middlewares: options.middlewares,
		trace:       options.trace,
		metrics:     options.metrics,
	}
}

// Dispatch handles cmd. When a sink fails in fail-fast mode the command is
// already committed: the result is returned together with the SinkError and
// the command is reported as completed, with the sink failure attached to
// the command.completed trace event.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, opts ...DispatchOption) (*Result, error) {
	var o dispatchOpts
	for _, opt := range opts {
		opt.applyToDispatch(&o)
	}
	t := newTracer(d.trace, o.trace)
	ctx, stage := withStageTracker(ctx)

	cmdType := cmd.CommandType()
	timer := d.metrics.DispatchDuration(cmdType)
	defer timer.ObserveDuration()

	res, err := d.dispatch(ctx, t, cmd)
	var sinkErr *SinkError
	if err != nil && res != nil && errors.As(err, &sinkErr) {
		stage.set(StageCompleted)
		t.emit(ctx, cmd, TraceEvent{Name: TraceCommandCompleted, Stage: StageCompleted, Err: err})
		d.metrics.CommandDispatched(cmdType, true)
		d.log.Warn(
			"command committed, sink failed",
			slog.String("cmd", cmdType),
			slog.String("aggregate_id", cmd.CommandMeta().AggregateID),
			slog.String("sink", sinkErr.Sink),
			slog.Any("error", err),
		)
		return res, err
	}
	if err != nil {
		failedAt := stage.get()
		if s, ok := StageOf(err); ok {
			failedAt = s
		}
		stage.set(StageFailed)
		t.emit(ctx, cmd, TraceEvent{Name: TraceCommandFailed, Stage: failedAt, Err: err})
		d.metrics.CommandDispatched(cmdType, false)
		d.log.Error(
			"command failed",
			slog.String("cmd", cmdType),
			slog.String("aggregate_id", cmd.CommandMeta().AggregateID),
			slog.String("stage", failedAt.String()),
			slog.Any("error", err),
		)
		return res, err
	}

	stage.set(StageCompleted)
	t.emit(ctx, cmd, TraceEvent{Name: TraceCommandCompleted, Stage: StageCompleted})
	d.metrics.CommandDispatched(cmdType, true)
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, t tracer, cmd Command) (*Result, error) {
	if _, _, err := d.registry.aggregateFor(cmd); err != nil {
		return nil, err
	}

	next := d.terminal(t)
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		next = d.wrap(t, d.middlewares[i], middlewareName(d.middlewares[i], i), next)
	}
	return next(ctx, cmd)
}

func (d *Dispatcher) terminal(t tracer) Next {
	return func(ctx context.Context, cmd Command) (*Result, error) {
		res, err := d.pipeline.Handle(ctx, cmd)
		if err != nil {
			return nil, err
		}
		setStage(ctx, StageSinksRunning)
		for _, ev := range res.Events {
			t.emit(ctx, cmd, TraceEvent{
				Name:          TraceEventApplied,
				EventType:     ev.EventType(),
				EventID:       ev.EventMeta().EventID,
				AggregateType: res.Aggregate.GetAggType(),
				AggregateID:   res.Aggregate.GetID(),
				Stage:         StageSinksRunning,
			})
			if err := d.sinks.Run(ctx, ev, res.Aggregate, cmd, t.fn()); err != nil {
				return res, err
			}
		}
		return res, nil
	}
}

func (d *Dispatcher) wrap(t tracer, mw Middleware, name string, next Next) Next {
	return func(ctx context.Context, cmd Command) (*Result, error) {
		t.emit(ctx, cmd, TraceEvent{Name: TraceMiddlewareExecuting, Middleware: name})
		start := time.Now()
		res, err := mw.Intercept(ctx, cmd, next)
		if err != nil {
			t.emit(ctx, cmd, TraceEvent{Name: TraceMiddlewareFailed, Middleware: name, Err: err, Duration: time.Since(start)})
			return res, err
		}
		t.emit(ctx, cmd, TraceEvent{Name: TraceMiddlewareCompleted, Middleware: name, Duration: time.Since(start)})
		return res, nil
	}
}
