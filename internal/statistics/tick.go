package statistics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const tickSubsystem = "tick"

// TickMetrics instruments the scheduler's pipeline: how long a
// tick takes end to end, and how many sample/apply calls failed, so
// `/health` and `/metrics` agree on the same underlying counters.
// Unlike the device collector below, this uses ordinary self-
// registering CounterVec/Histogram metrics, since the scheduler
// already has a natural "observe this once per tick" call site rather
// than a live object graph to poll at scrape time.
type TickMetrics struct {
	duration    prometheus.Histogram
	sampleFails *prometheus.CounterVec
	applyFails  *prometheus.CounterVec
}

// NewTickMetrics creates and registers the scheduler's tick metrics.
func NewTickMetrics() *TickMetrics {
	m := &TickMetrics{
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: tickSubsystem,
			Name:      "duration_seconds",
			Help:      "Wall time of one full tick pipeline pass",
			Buckets:   prometheus.DefBuckets,
		}),
		sampleFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: tickSubsystem,
			Name:      "sample_failures_total",
			Help:      "Count of repository Sample calls that returned an error",
		}, []string{"device_uid"}),
		applyFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: tickSubsystem,
			Name:      "apply_failures_total",
			Help:      "Count of repository Apply calls that returned an error",
		}, []string{"device_uid", "channel"}),
	}
	prometheus.MustRegister(m.duration, m.sampleFails, m.applyFails)
	return m
}

// ObserveTick records one tick's wall-clock duration.
func (m *TickMetrics) ObserveTick(d time.Duration) {
	m.duration.Observe(d.Seconds())
}

// RecordSampleFailure increments the sample-failure counter for deviceUID.
func (m *TickMetrics) RecordSampleFailure(deviceUID string) {
	m.sampleFails.WithLabelValues(deviceUID).Inc()
}

// RecordApplyFailure increments the apply-failure counter for the given
// channel.
func (m *TickMetrics) RecordApplyFailure(deviceUID, channel string) {
	m.applyFails.WithLabelValues(deviceUID, channel).Inc()
}
