// Package prometheus provides Prometheus implementations of the metrics
// interfaces of the event stores (es.ESMetrics) and the dispatcher
// (cqrs.Metrics).
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/cqrskit/core/metrics"
)

const namespace = "cqrskit"

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// AllMetrics bundles the store and dispatcher metrics registered on one
// registry.
type AllMetrics struct {
	ES   *esMetrics
	CQRS *cqrsMetrics
}

func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		ES:   NewESMetrics(reg).(*esMetrics),
		CQRS: NewCQRSMetrics(reg).(*cqrsMetrics),
	}
}
