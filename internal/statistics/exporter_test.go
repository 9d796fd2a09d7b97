package statistics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterAddsCollectorToDefaultRegistry(t *testing.T) {
	// GIVEN
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exporter_test_total",
		Help:      "test-only counter exercising Register",
	})

	// WHEN
	Register(counter)
	counter.Inc()

	// THEN
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
}
