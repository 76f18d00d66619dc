package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/internal/bank"
)

func TestNewESMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewESMetrics(reg)
	require.NotNil(t, m)

	m.StoreLoadDuration("account").ObserveDuration()
	m.StoreAppendDuration("account").ObserveDuration()
	m.EventsAppended("account", 5)
	m.ConcurrencyConflict("account")
	m.SnapshotLoadDuration("account").ObserveDuration()
	m.SnapshotSaveDuration("account").ObserveDuration()
	m.CacheHit("account")
	m.CacheMiss("account")
	m.CacheMiss("account")

	em := m.(*esMetrics)
	assert.Equal(t, float64(5), testutil.ToFloat64(em.eventsAppended.WithLabelValues("account")))
	assert.Equal(t, float64(1), testutil.ToFloat64(em.cacheHits.WithLabelValues("account")))
	assert.Equal(t, float64(2), testutil.ToFloat64(em.cacheMisses.WithLabelValues("account")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["cqrskit_es_store_load_duration_seconds"])
	assert.True(t, names["cqrskit_es_concurrency_conflicts_total"])
	assert.True(t, names["cqrskit_es_snapshot_save_duration_seconds"])
}

func TestNewAllMetrics_Dispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	all := NewAllMetrics(reg)

	registry := cqrs.NewRegistry()
	bank.Register(registry)
	factory := cqrs.NewFactory(
		es.InstrumentStateStore(es.NewInMemoryStateStore(), all.ES),
		es.InstrumentEventStore(es.NewInMemoryEventStore(), all.ES),
	)
	bank.Provide(factory, bank.NewLedger(), &bank.LargeDepositAlert{Threshold: 100})
	d := cqrs.NewDispatcher(registry, factory, cqrs.WithMetrics(all.CQRS), cqrs.WithVersionCheck())

	for _, amount := range []int{10, 200} {
		_, err := d.Dispatch(t.Context(), cqrs.NewCommand(bank.Deposit{Amount: amount}, "acc"))
		require.NoError(t, err)
	}
	_, err := d.Dispatch(t.Context(), cqrs.NewCommand(bank.Withdraw{Amount: 1000}, "acc"))
	require.Error(t, err)

	c := all.CQRS
	assert.Equal(t, float64(2), testutil.ToFloat64(c.commands.WithLabelValues("bank.Deposit", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.commands.WithLabelValues("bank.Withdraw", "false")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.eventsCommitted.WithLabelValues(bank.AggregateType)))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.sinkInvocations.WithLabelValues(bank.LedgerSinkType, "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.sinkInvocations.WithLabelValues(bank.AlertSinkType, "true")))
	assert.Equal(t, float64(2), testutil.ToFloat64(all.ES.eventsAppended.WithLabelValues(bank.AggregateType)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.dispatchDuration), "one series per command type")
}

func TestNewAllMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewAllMetrics(reg)
	require.Panics(t, func() { NewCQRSMetrics(reg) })
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}
