package cqrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codewandler/cqrskit/core/es"
)

// SinkRunner fans one committed event out to its sinks.
type SinkRunner interface {
	Run(ctx context.Context, ev es.DomainEvent, agg es.Aggregate, cmd Command, trace TraceFunc) error
}

// SinkExecutor runs the sinks bound to an event type concurrently and waits
// for all of them. A failing sink does not stop its siblings. Failures are
// traced and logged, and returned only in fail-fast mode.
type SinkExecutor struct {
	log      *slog.Logger
	registry *Registry
	factory  HandlerFactory
	metrics  Metrics
	failFast bool
}

func NewSinkExecutor(registry *Registry, factory HandlerFactory, opts ...SinkExecutorOption) *SinkExecutor {
	options := sinkExecutorOpts{log: slog.Default(), metrics: NopMetrics()}
	for _, opt := range opts {
		opt.applyToSinkExecutor(&options)
	}
	return &SinkExecutor{
		log:      options.log.With(slog.String("component", "sinks")),
		registry: registry,
		factory:  factory,
		metrics:  options.metrics,
		failFast: options.failFast,
	}
}

func (x *SinkExecutor) Run(ctx context.Context, ev es.DomainEvent, agg es.Aggregate, cmd Command, trace TraceFunc) error {
	bindings := x.registry.SinksForEventType(ev.EventType())
	if len(bindings) == 0 {
		return nil
	}
	t := newTracer(trace)

	var g errgroup.Group
	for _, b := range bindings {
		g.Go(func() error {
			return x.invoke(ctx, t, b, ev, agg, cmd)
		})
	}
	return g.Wait()
}

func (x *SinkExecutor) invoke(ctx context.Context, t tracer, b SinkBinding, ev es.DomainEvent, agg es.Aggregate, cmd Command) (err error) {
	meta := ev.EventMeta()
	base := TraceEvent{
		EventType:     ev.EventType(),
		EventID:       meta.EventID,
		Sink:          b.SinkType,
		AggregateType: agg.GetAggType(),
		AggregateID:   agg.GetID(),
		Stage:         StageSinksRunning,
	}
	log := x.log.With(
		slog.String("sink", b.SinkType),
		slog.Group("event", slog.String("type", ev.EventType()), slog.String("id", meta.EventID)),
	)
	skip := func(reason string) error {
		e := base
		e.Name, e.Reason = TraceSinkSkipped, reason
		t.emit(ctx, cmd, e)
		log.Debug("sink skipped", slog.String("reason", reason))
		return nil
	}
	fail := func(cause error) error {
		serr := &SinkError{EventType: ev.EventType(), EventID: meta.EventID, Sink: b.SinkType, Err: cause}
		e := base
		e.Name, e.Err = TraceSinkFailed, serr
		t.emit(ctx, cmd, e)
		log.Error("sink failed", slog.Any("error", cause))
		x.metrics.SinkInvoked(b.SinkType, false)
		if x.failFast {
			return serr
		}
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	v, err := x.factory.Create(b.SinkType)
	if errors.Is(err, ErrTypeNotProvided) || (err == nil && v == nil) {
		return skip("not provided")
	}
	if err != nil {
		return fail(err)
	}
	sink, ok := v.(Sink)
	if !ok {
		return fail(fmt.Errorf("%w: %s is %T", ErrInvalidHandler, b.SinkType, v))
	}

	if b.Condition != nil {
		ok, err := b.Condition(ctx, ev, agg)
		if err != nil {
			return fail(fmt.Errorf("condition: %w", err))
		}
		if !ok {
			return skip("condition")
		}
	}
	if tr, isTr := sink.(Triggerable); isTr {
		ok, err := tr.CouldBeTriggered(ctx, ev, agg)
		if err != nil {
			return fail(fmt.Errorf("could be triggered: %w", err))
		}
		if !ok {
			return skip("not triggered")
		}
	}

	e := base
	e.Name = TraceSinkInvoked
	t.emit(ctx, cmd, e)

	start := time.Now()
	timer := x.metrics.SinkDuration(b.SinkType)
	err = sink.Handle(ctx, ev, agg, cmd)
	timer.ObserveDuration()
	if err != nil {
		return fail(err)
	}
	x.metrics.SinkInvoked(b.SinkType, true)
	log.Debug("sink handled", slog.Duration("duration", time.Since(start)))
	return nil
}

var _ SinkRunner = (*SinkExecutor)(nil)
