// Package otel exports command dispatches as OpenTelemetry spans.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codewandler/cqrskit/core/cqrs"
)

const instrumentationName = "github.com/codewandler/cqrskit/adapters/otel"

type config struct {
	provider trace.TracerProvider
}

type Option func(*config)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.provider = tp }
}

func newConfig(opts []Option) config {
	c := config{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewTracingMiddleware wraps the rest of the chain in a span named after the
// command type. Put it first so the span covers the whole dispatch.
func NewTracingMiddleware(opts ...Option) cqrs.Middleware {
	tracer := newConfig(opts).provider.Tracer(instrumentationName)
	return cqrs.Named("otel", func(ctx context.Context, cmd cqrs.Command, next cqrs.Next) (*cqrs.Result, error) {
		meta := cmd.CommandMeta()
		ctx, span := tracer.Start(ctx, "dispatch "+cmd.CommandType(),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("cqrs.command.type", cmd.CommandType()),
				attribute.String("cqrs.command.id", meta.CommandID),
				attribute.String("cqrs.aggregate.id", meta.AggregateID),
			),
		)
		defer span.End()

		res, err := next(ctx, cmd)
		if res != nil {
			span.SetAttributes(attribute.Int("cqrs.events", len(res.Events)))
			if res.Aggregate != nil {
				span.SetAttributes(
					attribute.String("cqrs.aggregate.type", res.Aggregate.GetAggType()),
					attribute.Int64("cqrs.aggregate.version", int64(res.Aggregate.GetVersion())),
				)
			}
		}
		if err != nil {
			if stage, ok := cqrs.StageOf(err); ok {
				span.SetAttributes(attribute.String("cqrs.stage", stage.String()))
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
		span.SetStatus(codes.Ok, "")
		return res, nil
	})
}

// TraceFunc records dispatcher trace events as events on the span in ctx.
// Events outside a recording span are dropped.
func TraceFunc() cqrs.TraceFunc {
	return func(ctx context.Context, ev cqrs.TraceEvent) {
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		attrs := []attribute.KeyValue{attribute.String("cqrs.stage", ev.Stage.String())}
		add := func(key, value string) {
			if value != "" {
				attrs = append(attrs, attribute.String(key, value))
			}
		}
		add("cqrs.middleware", ev.Middleware)
		add("cqrs.event.type", ev.EventType)
		add("cqrs.event.id", ev.EventID)
		add("cqrs.sink", ev.Sink)
		add("cqrs.reason", ev.Reason)
		if ev.Err != nil {
			add("error", ev.Err.Error())
		}
		span.AddEvent(ev.Name, trace.WithTimestamp(ev.Time), trace.WithAttributes(attrs...))
	}
}
