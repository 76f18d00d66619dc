package cqrs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/codewandler/cqrskit/core/es"
)

// CommandBinding routes one command type. Handler names an external handler
// type created through the HandlerFactory and wins over Method.
type CommandBinding struct {
	CommandType   string
	AggregateType string
	Handler       string
	Method        string
}

// SinkCondition decides whether a bound sink runs for an event.
type SinkCondition func(ctx context.Context, ev es.DomainEvent, agg es.Aggregate) (bool, error)

type SinkBinding struct {
	EventType string
	SinkType  string
	Condition SinkCondition
}

// Registry holds the aggregate, command and sink bindings of a process. It
// is built once at start-up and shared by the pipeline and dispatcher.
type Registry struct {
	mu         sync.RWMutex
	aggregates map[string]AggregateDefinition
	commands   map[string]CommandBinding
	sinks      map[string][]SinkBinding
}

func NewRegistry() *Registry {
	return &Registry{
		aggregates: map[string]AggregateDefinition{},
		commands:   map[string]CommandBinding{},
		sinks:      map[string][]SinkBinding{},
	}
}

// RegisterAggregate adds def. Commands def handles that have no binding yet
// are bound to it.
func (r *Registry) RegisterAggregate(def AggregateDefinition) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	aggType := def.AggregateType()
	r.aggregates[aggType] = def
	for cmdType := range def.HandledCommands() {
		if _, ok := r.commands[cmdType]; !ok {
			r.commands[cmdType] = CommandBinding{CommandType: cmdType, AggregateType: aggType}
		}
	}
	return r
}

type (
	bindOpts   struct{ handler, method string }
	BindOption interface{ applyToBinding(*bindOpts) }

	handlerOption struct{ name string }
	methodOption  struct{ name string }
)

// WithHandler routes the command to the external handler type name.
func WithHandler(name string) BindOption { return handlerOption{name: name} }

// WithMethod routes the command to the aggregate method name.
func WithMethod(name string) BindOption { return methodOption{name: name} }

func (o handlerOption) applyToBinding(b *bindOpts) { b.handler = o.name }
func (o methodOption) applyToBinding(b *bindOpts)  { b.method = o.name }

// BindCommand routes cmdType to aggregate type aggType.
func (r *Registry) BindCommand(cmdType, aggType string, opts ...BindOption) *Registry {
	var o bindOpts
	for _, opt := range opts {
		opt.applyToBinding(&o)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmdType] = CommandBinding{
		CommandType:   cmdType,
		AggregateType: aggType,
		Handler:       o.handler,
		Method:        o.method,
	}
	return r
}

// Bind routes commands with payload T to aggType.
func Bind[T any](r *Registry, aggType string, opts ...BindOption) *Registry {
	return r.BindCommand(CommandTypeOf[T](), aggType, opts...)
}

type (
	sinkBindOpts    struct{ cond SinkCondition }
	SinkBindOption  interface{ applyToSinkBinding(*sinkBindOpts) }
	conditionOption struct{ fn SinkCondition }
)

// WithCondition runs the sink only for events fn accepts.
func WithCondition(fn SinkCondition) SinkBindOption { return conditionOption{fn: fn} }

func (o conditionOption) applyToSinkBinding(b *sinkBindOpts) { b.cond = o.fn }

// BindSink appends sink type sinkType to the sinks of eventType.
func (r *Registry) BindSink(eventType, sinkType string, opts ...SinkBindOption) *Registry {
	var o sinkBindOpts
	for _, opt := range opts {
		opt.applyToSinkBinding(&o)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[eventType] = append(r.sinks[eventType], SinkBinding{
		EventType: eventType,
		SinkType:  sinkType,
		Condition: o.cond,
	})
	return r
}

// SinkFor binds sinkType to events with payload T.
func SinkFor[T any](r *Registry, sinkType string, opts ...SinkBindOption) *Registry {
	return r.BindSink(es.EventTypeOf[T](), sinkType, opts...)
}

func (r *Registry) AggregateTypeForCommand(cmdType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.commands[cmdType]
	return b.AggregateType, ok
}

func (r *Registry) HandlerForCommand(cmdType string) (CommandBinding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.commands[cmdType]
	return b, ok
}

func (r *Registry) ReducersForAggregateType(aggType string) (ReducerLookup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.aggregates[aggType]
	if !ok {
		return nil, false
	}
	return def.Reducers(), true
}

// SinksForEventType returns the sink bindings of eventType in bind order.
func (r *Registry) SinksForEventType(eventType string) []SinkBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sinks[eventType])
}

// Resolution is the outcome of resolving a command.
type Resolution struct {
	AggregateType string
	AggregateID   string
	// Target is the external handler type or the aggregate method name.
	Target   string
	External bool
	Handler  CommandHandler
	def      AggregateDefinition
}

// NewAggregate returns a fresh, unhydrated instance of the target aggregate.
func (r *Resolution) NewAggregate() es.Aggregate { return r.def.NewAggregate(r.AggregateID) }

func (r *Registry) aggregateFor(cmd Command) (CommandBinding, AggregateDefinition, error) {
	cmdType := cmd.CommandType()
	r.mu.RLock()
	b, ok := r.commands[cmdType]
	def, defOK := r.aggregates[b.AggregateType]
	r.mu.RUnlock()
	if !ok {
		return b, nil, &InputError{CommandType: cmdType, Reason: ErrAggregateTypeNotFound}
	}
	if !defOK {
		return b, nil, &InputError{
			CommandType: cmdType,
			Reason:      ErrAggregateTypeNotFound,
			Err:         fmt.Errorf("aggregate type %q is not registered", b.AggregateType),
		}
	}
	return b, def, nil
}

// Resolve finds the aggregate and the handler for cmd. It does not touch
// the stores.
func (r *Registry) Resolve(cmd Command, f HandlerFactory) (*Resolution, error) {
	cmdType := cmd.CommandType()
	b, def, err := r.aggregateFor(cmd)
	if err != nil {
		return nil, err
	}
	aggID := cmd.CommandMeta().AggregateID
	if aggID == "" {
		return nil, &InputError{CommandType: cmdType, Reason: ErrMissingAggregateID}
	}
	res := &Resolution{AggregateType: b.AggregateType, AggregateID: aggID, def: def}

	if b.Handler != "" {
		v, err := f.Create(b.Handler)
		if err != nil {
			reason := ErrInvalidHandler
			if errors.Is(err, ErrTypeNotProvided) {
				reason = ErrHandlerNotFound
			}
			return nil, &InputError{CommandType: cmdType, Reason: reason, Err: err}
		}
		h, ok := v.(CommandHandler)
		if !ok {
			return nil, &InputError{
				CommandType: cmdType,
				Reason:      ErrInvalidHandler,
				Err:         fmt.Errorf("%s is %T", b.Handler, v),
			}
		}
		res.Target, res.External, res.Handler = b.Handler, true, h
		return res, nil
	}

	method := b.Method
	if method == "" {
		method = def.HandledCommands()[cmdType]
	}
	if method == "" {
		return nil, &InputError{CommandType: cmdType, Reason: ErrHandlerNotFound}
	}
	fn, ok := def.MethodByName(method)
	if !ok {
		return nil, &InputError{
			CommandType: cmdType,
			Reason:      ErrHandlerNotFound,
			Err:         fmt.Errorf("aggregate %s has no method %q", b.AggregateType, method),
		}
	}
	res.Target, res.Handler = method, HandlerFunc(fn)
	return res, nil
}
