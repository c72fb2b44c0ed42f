package trigger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the trigger executor's Prometheus surface (§6.2): counters for
// each stage a candidate can reach, gauges for the scheduler's current
// volume occupancy, and a histogram for preparation latency. The shape
// mirrors the teacher's observability.ModuleMetrics lazy-registration
// pattern, generalized from "module/method/outcome" labels to the
// executor's own admitted/prepared/executed/failed stages.
type Metrics struct {
	Admitted  prometheus.Counter
	Prepared  prometheus.Counter
	Executed  prometheus.Counter
	Failed    *prometheus.CounterVec
	Throttled prometheus.Counter

	PendingVolume  prometheus.Gauge
	PreparedVolume prometheus.Gauge

	PreparationLatency prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsRegistry *Metrics
)

// NewMetrics lazily constructs and registers the executor's metrics against
// the default Prometheus registry, returning the same instance on every
// call so repeated wiring (e.g. in tests) never double-registers.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsRegistry = &Metrics{
			Admitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "triggerexecutord",
				Name:      "candidates_admitted_total",
				Help:      "Total TCS candidates admitted into the preparation pipeline.",
			}),
			Prepared: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "triggerexecutord",
				Name:      "candidates_prepared_total",
				Help:      "Total TCS candidates that cleared preparation and were queued for execution.",
			}),
			Executed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "triggerexecutord",
				Name:      "triggers_executed_total",
				Help:      "Total TCS triggers submitted to the execution router successfully.",
			}),
			Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "triggerexecutord",
				Name:      "candidates_failed_total",
				Help:      "Total TCS candidates that failed preparation or execution, by riskerr Kind.",
			}, []string{"kind"}),
			Throttled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "triggerexecutord",
				Name:      "accounts_throttled_total",
				Help:      "Total preparation attempts skipped because the account's error window was tripped.",
			}),
			PendingVolume: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "triggerexecutord",
				Name:      "pending_volume",
				Help:      "Combined quote volume of in-flight preparation tasks.",
			}),
			PreparedVolume: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "triggerexecutord",
				Name:      "prepared_volume",
				Help:      "Combined quote volume of candidates prepared and awaiting execution.",
			}),
			PreparationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "triggerexecutord",
				Name:      "preparation_duration_seconds",
				Help:      "Latency distribution of the per-candidate preparation sequence.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			metricsRegistry.Admitted,
			metricsRegistry.Prepared,
			metricsRegistry.Executed,
			metricsRegistry.Failed,
			metricsRegistry.Throttled,
			metricsRegistry.PendingVolume,
			metricsRegistry.PreparedVolume,
			metricsRegistry.PreparationLatency,
		)
	})
	return metricsRegistry
}
