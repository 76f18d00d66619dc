package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/metrics"
)

// cqrsMetrics implements cqrs.Metrics using Prometheus.
type cqrsMetrics struct {
	dispatchDuration *prometheus.HistogramVec
	commands         *prometheus.CounterVec
	eventsCommitted  *prometheus.CounterVec
	sinkDuration     *prometheus.HistogramVec
	sinkInvocations  *prometheus.CounterVec
}

func NewCQRSMetrics(reg prometheus.Registerer) cqrs.Metrics {
	m := &cqrsMetrics{
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cqrs",
			Name:      "dispatch_duration_seconds",
			Help:      "Command dispatch latency in seconds, middlewares and sinks included",
			Buckets:   defaultBuckets,
		}, []string{"command_type"}),

		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cqrs",
			Name:      "commands_total",
			Help:      "Total number of dispatched commands",
		}, []string{"command_type", "success"}),

		eventsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cqrs",
			Name:      "events_committed_total",
			Help:      "Total number of events committed by the pipeline",
		}, []string{"aggregate_type"}),

		sinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cqrs",
			Name:      "sink_duration_seconds",
			Help:      "Sink handling latency in seconds",
			Buckets:   defaultBuckets,
		}, []string{"sink"}),

		sinkInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cqrs",
			Name:      "sink_invocations_total",
			Help:      "Total number of sink invocations",
		}, []string{"sink", "success"}),
	}

	reg.MustRegister(
		m.dispatchDuration,
		m.commands,
		m.eventsCommitted,
		m.sinkDuration,
		m.sinkInvocations,
	)
	return m
}

func (m *cqrsMetrics) DispatchDuration(cmdType string) metrics.Timer {
	return newTimer(m.dispatchDuration.WithLabelValues(cmdType))
}

func (m *cqrsMetrics) CommandDispatched(cmdType string, success bool) {
	m.commands.WithLabelValues(cmdType, boolToStr(success)).Inc()
}

func (m *cqrsMetrics) EventsCommitted(aggType string, count int) {
	m.eventsCommitted.WithLabelValues(aggType).Add(float64(count))
}

func (m *cqrsMetrics) SinkDuration(sinkType string) metrics.Timer {
	return newTimer(m.sinkDuration.WithLabelValues(sinkType))
}

func (m *cqrsMetrics) SinkInvoked(sinkType string, success bool) {
	m.sinkInvocations.WithLabelValues(sinkType, boolToStr(success)).Inc()
}

var _ cqrs.Metrics = (*cqrsMetrics)(nil)
