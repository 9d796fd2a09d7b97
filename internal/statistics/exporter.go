// Package statistics exposes coolerctld's internal state as Prometheus
// metrics: one pull-based prometheus.Collector per
// live-state source, plus a namespace constant shared by every
// collector's FQ metric name.
package statistics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "coolerctld"

// Register hands collector to the default Prometheus registry.
func Register(collector prometheus.Collector) {
	prometheus.MustRegister(collector)
}
