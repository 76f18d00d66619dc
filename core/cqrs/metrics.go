package cqrs

import "github.com/codewandler/cqrskit/core/metrics"

// Metrics is implemented by metrics backends for command dispatch.
type Metrics interface {
	DispatchDuration(cmdType string) metrics.Timer
	CommandDispatched(cmdType string, success bool)
	EventsCommitted(aggType string, count int)
	SinkDuration(sinkType string) metrics.Timer
	SinkInvoked(sinkType string, success bool)
}

type nopMetrics struct{}

func (nopMetrics) DispatchDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) CommandDispatched(string, bool)        {}
func (nopMetrics) EventsCommitted(string, int)           {}
func (nopMetrics) SinkDuration(string) metrics.Timer     { return metrics.NopTimer() }
func (nopMetrics) SinkInvoked(string, bool)              {}

func NopMetrics() Metrics { return nopMetrics{} }
