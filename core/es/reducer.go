package es

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/codewandler/cqrskit/internal/reflector"
)

var ErrEventTypeMismatch = errors.New("event type mismatch")

// Reducer mutates state in response to one event.
type Reducer[S any] func(state *S, ev DomainEvent) error

type namedReducer[S any] struct {
	name string
	fn   Reducer[S]
}

// ReducerTable maps event types to the reducers of one aggregate type.
//
// For an event, the explicit reducers registered for its type run first, in
// registration order. Then the convention handler runs: the method of *S
// named "On" + the event's short type name ("bank.Deposited" → OnDeposited),
// unless an explicit reducer with that name already ran. Convention methods
// take a DomainEvent or a concrete event type and may return an error.
type ReducerTable[S any] struct {
	mu          sync.RWMutex
	explicit    map[string][]namedReducer[S]
	conventions map[string]namedReducer[S]
}

func NewReducerTable[S any]() *ReducerTable[S] {
	return &ReducerTable[S]{
		explicit:    map[string][]namedReducer[S]{},
		conventions: discoverConventions[S](),
	}
}

// On registers fn under name for eventType.
func (t *ReducerTable[S]) On(eventType, name string, fn Reducer[S]) *ReducerTable[S] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.explicit[eventType] = append(t.explicit[eventType], namedReducer[S]{name: name, fn: fn})
	return t
}

// OnEvent registers a typed reducer for events with payload T.
func OnEvent[S, T any](t *ReducerTable[S], name string, fn func(state *S, ev *Event[T]) error) *ReducerTable[S] {
	return t.On(EventTypeOf[T](), name, func(state *S, ev DomainEvent) error {
		typed, ok := ev.(*Event[T])
		if !ok {
			return fmt.Errorf("%w: reducer %s wants *Event[%s], got %T", ErrEventTypeMismatch, name, reflector.TypeInfoFor[T]().Short(), ev)
		}
		return fn(state, typed)
	})
}

// Reducers lists, in invocation order, the names of the reducers that run
// for eventType.
func (t *ReducerTable[S]) Reducers(eventType string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var names []string
	for _, r := range t.explicit[eventType] {
		names = append(names, r.name)
	}
	if conv, ok := t.convention(eventType); ok && !hasReducer(t.explicit[eventType], conv.name) {
		names = append(names, conv.name)
	}
	return names
}

func (t *ReducerTable[S]) reduce(state *S, ev DomainEvent) error {
	t.mu.RLock()
	explicit := t.explicit[ev.EventType()]
	conv, hasConv := t.convention(ev.EventType())
	t.mu.RUnlock()

	for _, r := range explicit {
		if err := r.fn(state, ev); err != nil {
			return fmt.Errorf("reducer %s: %w", r.name, err)
		}
	}
	if hasConv && !hasReducer(explicit, conv.name) {
		if err := conv.fn(state, ev); err != nil {
			return fmt.Errorf("reducer %s: %w", conv.name, err)
		}
	}
	return nil
}

func (t *ReducerTable[S]) convention(eventType string) (namedReducer[S], bool) {
	r, ok := t.conventions[ConventionName(eventType)]
	return r, ok
}

// ConventionName returns the method name looked up for eventType.
func ConventionName(eventType string) string {
	return "On" + reflector.ShortName(eventType)
}

func hasReducer[S any](rs []namedReducer[S], name string) bool {
	for _, r := range rs {
		if r.name == name {
			return true
		}
	}
	return false
}

var (
	domainEventType = reflect.TypeFor[DomainEvent]()
	errorType       = reflect.TypeFor[error]()
)

func discoverConventions[S any]() map[string]namedReducer[S] {
	out := map[string]namedReducer[S]{}
	pt := reflect.PointerTo(reflect.TypeFor[S]())
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if len(m.Name) <= 2 || !strings.HasPrefix(m.Name, "On") {
			continue
		}
		// receiver + event
		ft := m.Type
		if ft.NumIn() != 2 || ft.NumOut() > 1 {
			continue
		}
		if ft.NumOut() == 1 && ft.Out(0) != errorType {
			continue
		}
		argT := ft.In(1)
		if !argT.Implements(domainEventType) {
			continue
		}
		fn := m.Func
		name := m.Name
		out[name] = namedReducer[S]{name: name, fn: func(state *S, ev DomainEvent) error {
			v := reflect.ValueOf(ev)
			if !v.Type().AssignableTo(argT) {
				return fmt.Errorf("%w: %s wants %s, got %T", ErrEventTypeMismatch, name, argT, ev)
			}
			res := fn.Call([]reflect.Value{reflect.ValueOf(state), v})
			if len(res) == 1 && !res[0].IsNil() {
				return res[0].Interface().(error)
			}
			return nil
		}}
	}
	return out
}
