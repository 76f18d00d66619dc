package cqrs_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/internal/bank"
)

var errBoom = errors.New("boom")

// spyEventStore counts calls and can fail appends. conflicts makes the next
// n plain appends fail with a version conflict, as a misbehaving store would.
type spyEventStore struct {
	EventStore *es.InMemoryEventStore
	loads      atomic.Int32
	appends    atomic.Int32
	conflicts  atomic.Int32
	appendErr  error
}

func (s *spyEventStore) Load(ctx context.Context, aggType, aggID string) ([]es.DomainEvent, error) {
	s.loads.Add(1)
	return s.EventStore.Load(ctx, aggType, aggID)
}

func (s *spyEventStore) Append(ctx context.Context, aggType, aggID string, events []es.DomainEvent) error {
	s.appends.Add(1)
	if s.appendErr != nil {
		return s.appendErr
	}
	if s.conflicts.Load() > 0 {
		s.conflicts.Add(-1)
		return fmt.Errorf("%w: %s/%s", es.ErrConcurrencyConflict, aggType, aggID)
	}
	return s.EventStore.Append(ctx, aggType, aggID, events)
}

func (s *spyEventStore) AppendExpect(ctx context.Context, aggType, aggID string, expected es.Version, events []es.DomainEvent) error {
	s.appends.Add(1)
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.EventStore.AppendExpect(ctx, aggType, aggID, expected, events)
}

func (s *spyEventStore) calls() int32 { return s.loads.Load() + s.appends.Load() }

// spyStateStore counts calls and can fail the next n gets or saves.
type spyStateStore struct {
	es.StateStore
	gets      atomic.Int32
	saves     atomic.Int32
	failGets  atomic.Int32
	failSaves atomic.Int32
}

func (s *spyStateStore) Get(ctx context.Context, aggType, aggID string) (*es.Snapshot, error) {
	s.gets.Add(1)
	if s.failGets.Load() > 0 {
		s.failGets.Add(-1)
		return nil, errBoom
	}
	return s.StateStore.Get(ctx, aggType, aggID)
}

func (s *spyStateStore) Save(ctx context.Context, aggType, aggID string, ss *es.Snapshot) error {
	s.saves.Add(1)
	if s.failSaves.Load() > 0 {
		s.failSaves.Add(-1)
		return errBoom
	}
	return s.StateStore.Save(ctx, aggType, aggID, ss)
}

func (s *spyStateStore) calls() int32 { return s.gets.Load() + s.saves.Load() }

type fixture struct {
	registry *cqrs.Registry
	factory  *cqrs.Factory
	states   *spyStateStore
	events   *spyEventStore
	ledger   *bank.Ledger
	alert    *bank.LargeDepositAlert
}

func newFixture() *fixture {
	f := &fixture{
		registry: cqrs.NewRegistry(),
		states:   &spyStateStore{StateStore: es.NewInMemoryStateStore()},
		events:   &spyEventStore{EventStore: es.NewInMemoryEventStore()},
		ledger:   bank.NewLedger(),
		alert:    &bank.LargeDepositAlert{Threshold: 1000},
	}
	f.factory = cqrs.NewFactory(f.states, f.events)
	bank.Register(f.registry)
	bank.Provide(f.factory, f.ledger, f.alert)
	return f
}

func (f *fixture) dispatcher(opts ...cqrs.DispatcherOption) *cqrs.Dispatcher {
	return cqrs.NewDispatcher(f.registry, f.factory, opts...)
}

func deposit(aggID string, amount int) *cqrs.Cmd[bank.Deposit] {
	return cqrs.NewCommand(bank.Deposit{Amount: amount}, aggID)
}

func constantBackOff() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

func balance(res *cqrs.Result) int {
	acc, _ := cqrs.StateOf[bank.Account](res)
	return acc.Value
}

// traceLog collects trace events.
type traceLog struct {
	mu     sync.Mutex
	events []cqrs.TraceEvent
}

func (l *traceLog) record(_ context.Context, ev cqrs.TraceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *traceLog) named(name string) []cqrs.TraceEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []cqrs.TraceEvent
	for _, ev := range l.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (l *traceLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		out = append(out, ev.Name)
	}
	return out
}
