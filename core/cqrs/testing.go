package cqrs

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/cqrskit/core/es"
)

// TestEnv wires a dispatcher over in-memory stores for tests.
type TestEnv struct {
	t          *testing.T
	Registry   *Registry
	Factory    *Factory
	States     *es.InMemoryStateStore
	Events     *es.InMemoryEventStore
	Dispatcher *Dispatcher
}

// StartTestEnv calls setup to register bindings and provide types, then
// builds the dispatcher with opts.
func StartTestEnv(t *testing.T, setup func(r *Registry, f *Factory), opts ...DispatcherOption) *TestEnv {
	t.Helper()
	states, events := es.NewInMemoryStateStore(), es.NewInMemoryEventStore()
	env := &TestEnv{
		t:        t,
		Registry: NewRegistry(),
		Factory:  NewFactory(states, events),
		States:   states,
		Events:   events,
	}
	if setup != nil {
		setup(env.Registry, env.Factory)
	}
	opts = append([]DispatcherOption{WithLog(slog.Default())}, opts...)
	env.Dispatcher = NewDispatcher(env.Registry, env.Factory, opts...)
	return env
}

// MustDispatch dispatches cmd and fails the test on error.
func (e *TestEnv) MustDispatch(cmd Command, opts ...DispatchOption) *Result {
	e.t.Helper()
	res, err := e.Dispatcher.Dispatch(e.t.Context(), cmd, opts...)
	require.NoError(e.t, err)
	return res
}

// Given appends history to the event log of one aggregate.
func (e *TestEnv) Given(aggType, aggID string, history ...es.DomainEvent) {
	e.t.Helper()
	for i, ev := range history {
		meta := ev.EventMeta()
		meta.AggregateType, meta.AggregateID = aggType, aggID
		if meta.Version == 0 {
			meta.Version = es.Version(i + 1)
		}
	}
	require.NoError(e.t, e.Events.Append(e.t.Context(), aggType, aggID, history))
}
