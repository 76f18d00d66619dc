package redis

import (
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/internal/bank"
	"github.com/codewandler/cqrskit/ports/kv"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newRegistry() *es.EventRegistry {
	reg := es.NewEventRegistry()
	bank.RegisterEvents(reg)
	return reg
}

func deposited(aggID string, amount int) es.DomainEvent {
	return es.NewEvent(bank.Deposited{Amount: amount}, es.WithAggregate(bank.AggregateType, aggID))
}

func TestKVStore(t *testing.T) {
	mr, client := newClient(t)
	store := NewKVStore(client, "kv:")

	_, err := store.Get(t.Context(), "a")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Put(t.Context(), "a", kv.Entry{Data: []byte("1"), Meta: map[string]any{"k": "v"}}, kv.PutOptions{}))
	require.NoError(t, store.Put(t.Context(), "b", kv.Entry{Data: []byte("2")}, kv.PutOptions{TTL: time.Minute}))
	require.True(t, mr.Exists("kv:a"))

	got, err := store.Get(t.Context(), "a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got.Data)
	require.Equal(t, "v", got.Meta["k"])

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(t.Context(), "b")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Delete(t.Context(), "a"))
	_, err = store.Get(t.Context(), "a")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStateStore(t *testing.T) {
	_, client := newClient(t)
	states := NewStateStore(client, "cqrskit:", es.WithTTL(time.Hour))

	agg := bank.Definition().New("acc")
	require.NoError(t, agg.Apply(deposited("acc", 12)))
	ss, err := es.CreateSnapshot(agg)
	require.NoError(t, err)
	require.NoError(t, states.Save(t.Context(), bank.AggregateType, "acc", ss))

	got, err := states.Get(t.Context(), bank.AggregateType, "acc")
	require.NoError(t, err)
	restored := bank.Definition().New("acc")
	require.NoError(t, es.RestoreSnapshot(restored, got))
	require.Equal(t, 12, restored.State().Value)
	require.Equal(t, es.Version(1), restored.GetVersion())
}

func TestEventStore(t *testing.T) {
	_, client := newClient(t)
	store := NewEventStore(client, newRegistry(), WithPrefix("test:"))
	ctx := t.Context()

	events, err := store.Load(ctx, bank.AggregateType, "acc")
	require.NoError(t, err)
	require.Empty(t, events)

	require.NoError(t, store.Append(ctx, bank.AggregateType, "acc", []es.DomainEvent{deposited("acc", 1), deposited("acc", 2)}))
	require.NoError(t, store.AppendExpect(ctx, bank.AggregateType, "acc", 2, []es.DomainEvent{deposited("acc", 3)}))
	err = store.AppendExpect(ctx, bank.AggregateType, "acc", 2, []es.DomainEvent{deposited("acc", 4)})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	events, err = store.Load(ctx, bank.AggregateType, "acc")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		require.Equal(t, bank.Deposited{Amount: i + 1}, ev.Payload())
	}

	tail, err := store.LoadAfter(ctx, bank.AggregateType, "acc", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, bank.Deposited{Amount: 3}, tail[0].Payload())

	err = store.Append(ctx, "bank:account", "acc", []es.DomainEvent{deposited("acc", 1)})
	require.ErrorIs(t, err, es.ErrInvalidAggregateType)
}

func TestEventStore_ConcurrentAppendExpect(t *testing.T) {
	_, client := newClient(t)
	store := NewEventStore(client, newRegistry())

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.AppendExpect(t.Context(), bank.AggregateType, "acc", 0, []es.DomainEvent{deposited("acc", 1)})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, es.ErrConcurrencyConflict)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, ok)
}

func TestDispatcher(t *testing.T) {
	_, client := newClient(t)
	registry := cqrs.NewRegistry()
	bank.Register(registry)
	factory := cqrs.NewFactory(NewStateStore(client, "cqrskit:"), NewEventStore(client, newRegistry()))
	ledger := bank.NewLedger()
	bank.Provide(factory, ledger, nil)
	d := cqrs.NewDispatcher(registry, factory, cqrs.WithVersionCheck())

	for _, amount := range []int{5, 10} {
		_, err := d.Dispatch(t.Context(), cqrs.NewCommand(bank.Deposit{Amount: amount}, "acc"))
		require.NoError(t, err)
	}
	res, err := d.Dispatch(t.Context(), cqrs.NewCommand(bank.Withdraw{Amount: 3}, "acc"))
	require.NoError(t, err)
	acc, _ := cqrs.StateOf[bank.Account](res)
	require.Equal(t, 12, acc.Value)
	require.Len(t, ledger.Lines(), 3)
}
