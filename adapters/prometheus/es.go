package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/core/metrics"
)

// esMetrics implements es.ESMetrics using Prometheus.
type esMetrics struct {
	// Store metrics
	storeLoadDuration    *prometheus.HistogramVec
	storeAppendDuration  *prometheus.HistogramVec
	eventsAppended       *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec

	// Snapshot metrics
	snapshotLoadDuration *prometheus.HistogramVec
	snapshotSaveDuration *prometheus.HistogramVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

func newLatency(name, help string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "es",
		Name:      name,
		Help:      help,
		Buckets:   defaultBuckets,
	}, []string{"aggregate_type"})
}

func newAggCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "es",
		Name:      name,
		Help:      help,
	}, []string{"aggregate_type"})
}

// NewESMetrics creates a Prometheus implementation of ESMetrics and
// registers it on reg.
func NewESMetrics(reg prometheus.Registerer) es.ESMetrics {
	m := &esMetrics{
		storeLoadDuration:    newLatency("store_load_duration_seconds", "Event store load latency in seconds"),
		storeAppendDuration:  newLatency("store_append_duration_seconds", "Event store append latency in seconds"),
		eventsAppended:       newAggCounter("events_appended_total", "Total number of events appended"),
		concurrencyConflicts: newAggCounter("concurrency_conflicts_total", "Total number of rejected conditional appends"),
		snapshotLoadDuration: newLatency("snapshot_load_duration_seconds", "Snapshot load latency in seconds"),
		snapshotSaveDuration: newLatency("snapshot_save_duration_seconds", "Snapshot save latency in seconds"),
		cacheHits:            newAggCounter("cache_hits_total", "Total number of snapshot cache hits"),
		cacheMisses:          newAggCounter("cache_misses_total", "Total number of snapshot cache misses"),
	}

	reg.MustRegister(
		m.storeLoadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.concurrencyConflicts,
		m.snapshotLoadDuration,
		m.snapshotSaveDuration,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

func (m *esMetrics) StoreLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.storeLoadDuration.WithLabelValues(aggType))
}

func (m *esMetrics) StoreAppendDuration(aggType string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(aggType))
}

func (m *esMetrics) EventsAppended(aggType string, count int) {
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *esMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *esMetrics) SnapshotLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotLoadDuration.WithLabelValues(aggType))
}

func (m *esMetrics) SnapshotSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotSaveDuration.WithLabelValues(aggType))
}

func (m *esMetrics) CacheHit(aggType string) {
	m.cacheHits.WithLabelValues(aggType).Inc()
}

func (m *esMetrics) CacheMiss(aggType string) {
	m.cacheMisses.WithLabelValues(aggType).Inc()
}

var _ es.ESMetrics = (*esMetrics)(nil)
