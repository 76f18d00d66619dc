package es

import "github.com/codewandler/cqrskit/core/metrics"

// ESMetrics is implemented by metrics backends for the stores. Implementations
// must be safe for concurrent use.
type ESMetrics interface {
	StoreLoadDuration(aggType string) metrics.Timer
	StoreAppendDuration(aggType string) metrics.Timer
	EventsAppended(aggType string, count int)
	ConcurrencyConflict(aggType string)

	SnapshotLoadDuration(aggType string) metrics.Timer
	SnapshotSaveDuration(aggType string) metrics.Timer

	CacheHit(aggType string)
	CacheMiss(aggType string)
}

type nopESMetrics struct{}

func (nopESMetrics) StoreLoadDuration(string) metrics.Timer    { return metrics.NopTimer() }
func (nopESMetrics) StoreAppendDuration(string) metrics.Timer  { return metrics.NopTimer() }
func (nopESMetrics) EventsAppended(string, int)                {}
func (nopESMetrics) ConcurrencyConflict(string)                {}
func (nopESMetrics) SnapshotLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) SnapshotSaveDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) CacheHit(string)                           {}
func (nopESMetrics) CacheMiss(string)                          {}

func NopESMetrics() ESMetrics { return nopESMetrics{} }
