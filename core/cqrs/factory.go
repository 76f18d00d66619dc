package cqrs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/codewandler/cqrskit/core/es"
)

var ErrTypeNotProvided = errors.New("type not provided")

// HandlerFactory creates handler and sink instances by type name and owns
// the two stores.
type HandlerFactory interface {
	Create(typeName string) (any, error)
	StateStore() es.StateStore
	EventStore() es.EventStore
}

// Factory is a map-backed HandlerFactory.
type Factory struct {
	mu     sync.RWMutex
	ctors  map[string]func() any
	state  es.StateStore
	events es.EventStore
}

func NewFactory(state es.StateStore, events es.EventStore) *Factory {
	return &Factory{ctors: map[string]func() any{}, state: state, events: events}
}

// Provide registers the constructor used for name. Each Create calls it.
func (f *Factory) Provide(name string, ctor func() any) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[name] = ctor
	return f
}

// ProvideValue makes Create return v for name.
func (f *Factory) ProvideValue(name string, v any) *Factory {
	return f.Provide(name, func() any { return v })
}

func (f *Factory) Create(name string) (any, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotProvided, name)
	}
	return ctor(), nil
}

func (f *Factory) StateStore() es.StateStore { return f.state }
func (f *Factory) EventStore() es.EventStore { return f.events }

var _ HandlerFactory = (*Factory)(nil)
