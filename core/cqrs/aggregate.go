package cqrs

import (
	"context"
	"fmt"
	"maps"

	"github.com/codewandler/cqrskit/core/es"
)

// ReducerLookup lists the reducers that run for an event type.
type ReducerLookup interface {
	Reducers(eventType string) []string
}

// AggregateMethod is a command handler declared on an aggregate type.
type AggregateMethod func(ctx context.Context, agg es.Aggregate, cmd Command) ([]es.DomainEvent, error)

// AggregateDefinition describes an aggregate type to a Registry. It is
// implemented by *AggregateDef.
type AggregateDefinition interface {
	AggregateType() string
	NewAggregate(id string) es.Aggregate
	Reducers() ReducerLookup
	MethodByName(name string) (AggregateMethod, bool)
	// HandledCommands maps command types to the method that handles them.
	HandledCommands() map[string]string
}

// AggregateDef declares an aggregate type over state S.
type AggregateDef[S any] struct {
	name     string
	reducers *es.ReducerTable[S]
	init     func() S
	methods  map[string]AggregateMethod
	handles  map[string]string
}

// DefineAggregate declares aggregate type name. init returns the state of a
// fresh instance; nil means the zero S.
func DefineAggregate[S any](name string, reducers *es.ReducerTable[S], init func() S) *AggregateDef[S] {
	if reducers == nil {
		reducers = es.NewReducerTable[S]()
	}
	if init == nil {
		init = func() S { var zero S; return zero }
	}
	return &AggregateDef[S]{
		name:     name,
		reducers: reducers,
		init:     init,
		methods:  map[string]AggregateMethod{},
		handles:  map[string]string{},
	}
}

// Method declares a command handler method named name.
func (d *AggregateDef[S]) Method(name string, fn func(ctx context.Context, agg *es.Root[S], cmd Command) ([]es.DomainEvent, error)) *AggregateDef[S] {
	d.methods[name] = func(ctx context.Context, agg es.Aggregate, cmd Command) ([]es.DomainEvent, error) {
		root, ok := agg.(*es.Root[S])
		if !ok {
			return nil, fmt.Errorf("%w: %s expects *es.Root[%T], got %T", ErrInvalidHandler, name, *new(S), agg)
		}
		return fn(ctx, root, cmd)
	}
	return d
}

// Handles routes commands of cmdType to method.
func (d *AggregateDef[S]) Handles(cmdType, method string) *AggregateDef[S] {
	d.handles[cmdType] = method
	return d
}

// HandleCommand declares method for commands with payload T and routes them
// to it.
func HandleCommand[S, T any](d *AggregateDef[S], method string, fn func(ctx context.Context, agg *es.Root[S], cmd *Cmd[T]) ([]es.DomainEvent, error)) *AggregateDef[S] {
	d.methods[method] = AggregateMethod(Typed(fn))
	return d.Handles(CommandTypeOf[T](), method)
}

// New returns a fresh aggregate with id.
func (d *AggregateDef[S]) New(id string) *es.Root[S] {
	return es.NewRoot(d.name, id, d.reducers, d.init())
}

func (d *AggregateDef[S]) AggregateType() string               { return d.name }
func (d *AggregateDef[S]) NewAggregate(id string) es.Aggregate { return d.New(id) }
func (d *AggregateDef[S]) Reducers() ReducerLookup             { return d.reducers }

func (d *AggregateDef[S]) MethodByName(name string) (AggregateMethod, bool) {
	m, ok := d.methods[name]
	return m, ok
}

func (d *AggregateDef[S]) HandledCommands() map[string]string {
	return maps.Clone(d.handles)
}

var _ AggregateDefinition = (*AggregateDef[struct{}])(nil)
