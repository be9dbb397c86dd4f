// Package metrics exposes hazard registry diagnostics as Prometheus
// metrics. The library itself opens no network surface: callers
// register the collector with whatever registry and exposition they
// already run.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PendingCounter is the diagnostic surface a hazard registry exposes.
// The value is advisory: it can be stale the moment it is read.
type PendingCounter interface {
	PendingCount() int
}

// Collector turns a PendingCounter into a prometheus.Collector.
type Collector struct {
	source  PendingCounter
	pending *prometheus.Desc
}

// NewCollector builds a collector over source. name labels the metric
// so several registries can coexist in one process.
func NewCollector(name string, source PendingCounter) *Collector {
	return &Collector{
		source: source,
		pending: prometheus.NewDesc(
			"hazptr_retired_pending",
			"Retired objects awaiting a sweep that proves them unprotected.",
			nil,
			prometheus.Labels{"registry": name},
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.pending,
		prometheus.GaugeValue,
		float64(c.source.PendingCount()),
	)
}
