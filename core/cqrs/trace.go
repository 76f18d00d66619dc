package cqrs

import (
	"context"
	"time"
)

// Trace event names.
const (
	TraceMiddlewareExecuting = "middleware.executing"
	TraceMiddlewareCompleted = "middleware.completed"
	TraceMiddlewareFailed    = "middleware.failed"
	TraceEventApplied        = "event.applied"
	TraceSinkInvoked         = "event.sink.invoked"
	TraceSinkFailed          = "event.sink.failed"
	TraceSinkSkipped         = "event.sink.skipped"
	TraceCommandCompleted    = "command.completed"
	TraceCommandFailed       = "command.failed"
)

// TraceEvent describes one step of a dispatch. Fields that do not apply to
// Name are empty.
type TraceEvent struct {
	Name          string
	Time          time.Time
	CommandType   string
	CommandID     string
	AggregateType string
	AggregateID   string
	Middleware    string
	EventType     string
	EventID       string
	Sink          string
	Reason        string
	Stage         Stage
	Duration      time.Duration
	Err           error
}

// TraceFunc observes trace events. It must not block; panics are recovered.
type TraceFunc func(ctx context.Context, ev TraceEvent)

type tracer []TraceFunc

func newTracer(fns ...TraceFunc) tracer {
	var t tracer
	for _, fn := range fns {
		if fn != nil {
			t = append(t, fn)
		}
	}
	return t
}

func (t tracer) emit(ctx context.Context, cmd Command, ev TraceEvent) {
	if len(t) == 0 {
		return
	}
	ev.Time = time.Now()
	if cmd != nil {
		ev.CommandType = cmd.CommandType()
		ev.CommandID = cmd.CommandMeta().CommandID
		if ev.AggregateID == "" {
			ev.AggregateID = cmd.CommandMeta().AggregateID
		}
	}
	for _, fn := range t {
		func() {
			defer func() { _ = recover() }()
			fn(ctx, ev)
		}()
	}
}

// fn collapses the tracer into a single TraceFunc.
func (t tracer) fn() TraceFunc {
	if len(t) == 0 {
		return nil
	}
	return func(ctx context.Context, ev TraceEvent) {
		for _, fn := range t {
			func() {
				defer func() { _ = recover() }()
				fn(ctx, ev)
			}()
		}
	}
}
