package nats

import (
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/internal/bank"
)

func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	reg := es.NewEventRegistry()
	bank.RegisterEvents(reg)
	store, err := NewEventStore(t.Context(), EventStoreConfig{
		Connect:  NewTestContainer(t),
		Registry: reg,
		Storage:  jetstream.MemoryStorage,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func deposited(aggID string, amount int, version es.Version) es.DomainEvent {
	ev := es.NewEvent(bank.Deposited{Amount: amount}, es.WithAggregate(bank.AggregateType, aggID))
	ev.Metadata.Version = version
	return ev
}

func TestEventStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires nats")
	}
	store := newTestEventStore(t)
	ctx := t.Context()

	t.Run("stream info", func(t *testing.T) {
		si, err := store.stream.Info(ctx)
		require.NoError(t, err)
		require.Equal(t, defaultStreamName, si.Config.Name)
		require.Equal(t, []string{defaultSubjectPrefix + ".>"}, si.Config.Subjects)
	})

	t.Run("unknown aggregate", func(t *testing.T) {
		events, err := store.Load(ctx, bank.AggregateType, "nobody")
		require.NoError(t, err)
		require.Empty(t, events)
	})

	t.Run("append and load", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, bank.AggregateType, "a1", []es.DomainEvent{
			deposited("a1", 10, 1),
			deposited("a1", 20, 2),
		}))
		require.NoError(t, store.Append(ctx, bank.AggregateType, "other", []es.DomainEvent{deposited("other", 1, 1)}))
		require.NoError(t, store.Append(ctx, bank.AggregateType, "a1", []es.DomainEvent{deposited("a1", 30, 3)}))

		events, err := store.Load(ctx, bank.AggregateType, "a1")
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i, ev := range events {
			require.Equal(t, bank.Deposited{Amount: (i + 1) * 10}, ev.Payload())
			require.Equal(t, es.Version(i+1), ev.EventMeta().Version)
		}
	})

	t.Run("append expect", func(t *testing.T) {
		require.NoError(t, store.AppendExpect(ctx, bank.AggregateType, "a2", 0, []es.DomainEvent{deposited("a2", 1, 1)}))
		err := store.AppendExpect(ctx, bank.AggregateType, "a2", 0, []es.DomainEvent{deposited("a2", 1, 1)})
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)
		require.NoError(t, store.AppendExpect(ctx, bank.AggregateType, "a2", 1, []es.DomainEvent{deposited("a2", 2, 2)}))
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			conflicts int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.AppendExpect(ctx, bank.AggregateType, "a3", 0, []es.DomainEvent{deposited("a3", 1, 1)})
				if err != nil {
					assert.ErrorIs(t, err, es.ErrConcurrencyConflict)
					mu.Lock()
					conflicts++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 4, conflicts)
		events, err := store.Load(ctx, bank.AggregateType, "a3")
		require.NoError(t, err)
		require.Len(t, events, 1)
	})
}

func TestEventStore_Dispatcher(t *testing.T) {
	if testing.Short() {
		t.Skip("requires nats")
	}
	store := newTestEventStore(t)

	registry := cqrs.NewRegistry()
	bank.Register(registry)
	factory := cqrs.NewFactory(nil, store)
	bank.Provide(factory, bank.NewLedger(), nil)
	d := cqrs.NewDispatcher(registry, factory, cqrs.WithVersionCheck())

	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(t.Context(), cqrs.NewCommand(bank.Deposit{Amount: 5}, "acc"))
		require.NoError(t, err)
	}
	res, err := d.Dispatch(t.Context(), cqrs.NewCommand(bank.Withdraw{Amount: 7}, "acc"))
	require.NoError(t, err)
	acc, ok := cqrs.StateOf[bank.Account](res)
	require.True(t, ok)
	require.Equal(t, 8, acc.Value)
	require.Equal(t, es.Version(4), res.Aggregate.GetVersion())
}

func TestCheckAggregate(t *testing.T) {
	require.NoError(t, checkAggregate(bank.AggregateType, "acc-1"))
	require.NoError(t, checkAggregate(bank.AggregateType, "eu.acc-1"), "ids may span subject tokens")

	require.ErrorIs(t, checkAggregate("bank.account", "acc"), es.ErrInvalidAggregateType)
	require.ErrorIs(t, checkAggregate("acc*", "acc"), es.ErrInvalidAggregateType)
	require.Error(t, checkAggregate(bank.AggregateType, ""))
	require.Error(t, checkAggregate(bank.AggregateType, "acc.>"))
}
