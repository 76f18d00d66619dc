package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/internal/bank"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cqrskit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func newRegistry() *es.EventRegistry {
	reg := es.NewEventRegistry()
	bank.RegisterEvents(reg)
	return reg
}

func TestOpen(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)

	store := openTestStore(t)
	var mode string
	require.NoError(t, store.DB().QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestEventStore(t *testing.T) {
	events := openTestStore(t).EventStore(newRegistry())
	ctx := t.Context()

	loaded, err := events.Load(ctx, bank.AggregateType, "acc")
	require.NoError(t, err)
	require.Empty(t, loaded)

	first := es.NewEvent(bank.Deposited{Amount: 10},
		es.WithAggregate(bank.AggregateType, "acc"),
		es.WithUserID("u-1"),
		es.WithCorrelationID("c-1"),
	)
	first.Metadata.Version = 1
	require.NoError(t, events.Append(ctx, bank.AggregateType, "acc", []es.DomainEvent{first}))

	second := es.NewEvent(bank.Withdrawn{Amount: 4}, es.WithAggregate(bank.AggregateType, "acc"))
	second.Metadata.Version = 2
	require.NoError(t, events.AppendExpect(ctx, bank.AggregateType, "acc", 1, []es.DomainEvent{second}))

	err = events.AppendExpect(ctx, bank.AggregateType, "acc", 1, []es.DomainEvent{
		es.NewEvent(bank.Withdrawn{Amount: 1}, es.WithAggregate(bank.AggregateType, "acc")),
	})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	loaded, err = events.Load(ctx, bank.AggregateType, "acc")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, first.Metadata.EventID, loaded[0].EventMeta().EventID)
	require.Equal(t, "u-1", loaded[0].EventMeta().UserID)
	require.Equal(t, "c-1", loaded[0].EventMeta().CorrelationID)
	require.Equal(t, bank.Withdrawn{Amount: 4}, loaded[1].Payload())
	require.Equal(t, es.Version(2), loaded[1].EventMeta().Version)

	tail, err := events.LoadAfter(ctx, bank.AggregateType, "acc", 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, second.Metadata.EventID, tail[0].EventMeta().EventID)

	// the same event id cannot be stored twice; a plain append reports that
	// as a failure, not as a version conflict
	err = events.Append(ctx, bank.AggregateType, "other", []es.DomainEvent{first})
	require.Error(t, err)
	require.NotErrorIs(t, err, es.ErrConcurrencyConflict)

	err = events.AppendExpect(ctx, bank.AggregateType, "other", 0, []es.DomainEvent{first})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)
}

func TestStateStore(t *testing.T) {
	states := openTestStore(t).StateStore()
	ctx := t.Context()

	_, err := states.Get(ctx, bank.AggregateType, "acc")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	agg := bank.Definition().New("acc")
	require.NoError(t, agg.Apply(es.NewEvent(bank.Deposited{Amount: 3})))
	ss, err := es.CreateSnapshot(agg)
	require.NoError(t, err)
	require.NoError(t, states.Save(ctx, bank.AggregateType, "acc", ss))

	require.NoError(t, agg.Apply(es.NewEvent(bank.Deposited{Amount: 4})))
	ss, err = es.CreateSnapshot(agg)
	require.NoError(t, err)
	require.NoError(t, states.Save(ctx, bank.AggregateType, "acc", ss))

	got, err := states.Get(ctx, bank.AggregateType, "acc")
	require.NoError(t, err)
	require.Equal(t, ss.SnapshotID, got.SnapshotID)
	require.Equal(t, es.Version(2), got.ObjVersion)
	require.JSONEq(t, `{"value":7,"deposits":2}`, string(got.Data))
}

func TestCommandLog(t *testing.T) {
	store := openTestStore(t)
	cmdLog := store.CommandLog()

	registry := cqrs.NewRegistry()
	bank.Register(registry)
	factory := cqrs.NewFactory(store.StateStore(), store.EventStore(newRegistry()))
	bank.Provide(factory, bank.NewLedger(), nil)
	d := cqrs.NewDispatcher(registry, factory,
		cqrs.WithVersionCheck(),
		cqrs.WithMiddlewares(cqrs.NewCommandLogMiddleware(cmdLog)),
	)

	deposit := cqrs.NewCommand(bank.Deposit{Amount: 9}, "acc", cqrs.WithUser("u-1"))
	res, err := d.Dispatch(t.Context(), deposit)
	require.NoError(t, err)
	_, err = d.Dispatch(t.Context(), cqrs.NewCommand(bank.Withdraw{Amount: 100}, "acc"))
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	_, err = d.Dispatch(t.Context(), cqrs.NewCommand(bank.Withdraw{Amount: 2}, "acc"))
	require.NoError(t, err)

	entries, err := cmdLog.ForAggregate(t.Context(), bank.AggregateType, "acc")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, deposit.Metadata.CommandID, entries[0].CommandID)
	require.Equal(t, "u-1", entries[0].UserID)
	require.JSONEq(t, `{"amount":9}`, string(entries[0].Payload))
	require.Equal(t, []string{res.Events[0].EventMeta().EventID}, entries[0].EventIDs)
	require.Equal(t, "bank.Withdraw", entries[1].CommandType)

	require.Error(t, cmdLog.Save(t.Context(), entries[0]), "duplicate command id")

	_, err = store.DB().Exec(DropCommandLogTableSQL)
	require.NoError(t, err)
	_, err = store.DB().Exec(CommandLogTableSQL)
	require.NoError(t, err)
	entries, err = cmdLog.ForAggregate(t.Context(), bank.AggregateType, "acc")
	require.NoError(t, err)
	require.Empty(t, entries)
}
