package cqrs

import (
	"context"
	"fmt"

	"github.com/codewandler/cqrskit/core/es"
)

// CommandHandler executes a command against a hydrated aggregate and returns
// the events it produced, in order. Handlers may also apply events to agg
// themselves; those are committed too.
type CommandHandler interface {
	Execute(ctx context.Context, agg es.Aggregate, cmd Command) ([]es.DomainEvent, error)
}

type HandlerFunc func(ctx context.Context, agg es.Aggregate, cmd Command) ([]es.DomainEvent, error)

func (f HandlerFunc) Execute(ctx context.Context, agg es.Aggregate, cmd Command) ([]es.DomainEvent, error) {
	return f(ctx, agg, cmd)
}

// Single adapts a handler that yields at most one event.
func Single(fn func(ctx context.Context, agg es.Aggregate, cmd Command) (es.DomainEvent, error)) HandlerFunc {
	return func(ctx context.Context, agg es.Aggregate, cmd Command) ([]es.DomainEvent, error) {
		ev, err := fn(ctx, agg, cmd)
		if err != nil || ev == nil {
			return nil, err
		}
		return []es.DomainEvent{ev}, nil
	}
}

// Typed adapts a handler for aggregates of state S and commands with payload T.
func Typed[S, T any](fn func(ctx context.Context, agg *es.Root[S], cmd *Cmd[T]) ([]es.DomainEvent, error)) HandlerFunc {
	return func(ctx context.Context, agg es.Aggregate, cmd Command) ([]es.DomainEvent, error) {
		root, ok := agg.(*es.Root[S])
		if !ok {
			return nil, fmt.Errorf("%w: aggregate is %T", ErrInvalidHandler, agg)
		}
		typed, ok := cmd.(*Cmd[T])
		if !ok {
			return nil, fmt.Errorf("%w: command is %T", ErrInvalidHandler, cmd)
		}
		return fn(ctx, root, typed)
	}
}

// Sink reacts to a committed event.
type Sink interface {
	Handle(ctx context.Context, ev es.DomainEvent, agg es.Aggregate, cmd Command) error
}

// Triggerable is implemented by sinks that decide per event whether to run.
type Triggerable interface {
	CouldBeTriggered(ctx context.Context, ev es.DomainEvent, agg es.Aggregate) (bool, error)
}

type SinkFunc func(ctx context.Context, ev es.DomainEvent, agg es.Aggregate, cmd Command) error

func (f SinkFunc) Handle(ctx context.Context, ev es.DomainEvent, agg es.Aggregate, cmd Command) error {
	return f(ctx, ev, agg, cmd)
}
