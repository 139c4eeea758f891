package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AccountMetrics tracks the daemon's operation activity: invocations
// segmented by operation and outcome, plus handling latency. Failure codes
// are stable strings, so the outcome label has bounded cardinality.
type AccountMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

var (
	accountMetricsOnce sync.Once
	accountRegistry    *AccountMetrics
)

// Metrics returns the lazily-initialised account metrics registry.
func Metrics() *AccountMetrics {
	accountMetricsOnce.Do(func() {
		accountRegistry = &AccountMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "account",
				Name:      "operations_total",
				Help:      "Account operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "custody",
				Subsystem: "account",
				Name:      "operation_seconds",
				Help:      "Account operation handling latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(accountRegistry.operations, accountRegistry.latency)
	})
	return accountRegistry
}

// Observe records one completed operation. outcome is "ok" or the stable
// failure code.
func (m *AccountMetrics) Observe(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
