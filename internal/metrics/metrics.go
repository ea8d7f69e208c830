// Package metrics holds the process's Prometheus vectors: one struct of
// pre-registered vectors built by promauto so construction never fails,
// plus typed Record* methods instead of scattering WithLabelValues calls
// across the dispatch path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus vector this service exports.
type Metrics struct {
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	CircuitRejections *prometheus.CounterVec
	DispatchTimeouts *prometheus.CounterVec
	DispatchErrors   *prometheus.CounterVec

	WorkersAlive  *prometheus.GaugeVec
	WorkersIdle   *prometheus.GaugeVec
	QueueDepth    *prometheus.GaugeVec

	MemoryInUseMB   prometheus.Gauge
	MemoryCeilingMB prometheus.Gauge

	CircuitState *prometheus.GaugeVec
}

// New creates and registers every vector.
func New() *Metrics {
	return &Metrics{
		DispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelrun_dispatch_total",
				Help: "Total number of dispatch attempts per capability and outcome.",
			},
			[]string{"capability", "registry_key", "outcome"},
		),
		DispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelrun_dispatch_duration_seconds",
				Help:    "Dispatch round-trip latency, from send to reply or timeout.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability", "registry_key"},
		),
		CircuitRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelrun_circuit_rejections_total",
				Help: "Requests rejected because a circuit breaker was open.",
			},
			[]string{"registry_key"},
		),
		DispatchTimeouts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelrun_dispatch_timeouts_total",
				Help: "Dispatch attempts that timed out waiting for a reply.",
			},
			[]string{"registry_key"},
		),
		DispatchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelrun_dispatch_errors_total",
				Help: "Dispatch attempts that failed for a reason other than timeout or open circuit.",
			},
			[]string{"registry_key", "reason"},
		),
		WorkersAlive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelrun_workers_alive",
				Help: "Workers currently in a live state (Ready, Idle, or Processing), per registry key.",
			},
			[]string{"capability", "registry_key"},
		),
		WorkersIdle: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelrun_workers_idle",
				Help: "Workers currently Idle, per registry key.",
			},
			[]string{"capability", "registry_key"},
		),
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelrun_queue_depth",
				Help: "Advisory operation-channel depth for one worker, per registry key.",
			},
			[]string{"capability", "registry_key", "worker_id"},
		),
		MemoryInUseMB: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "modelrun_memory_in_use_mb",
				Help: "Memory reserved against the governor's ceiling.",
			},
		),
		MemoryCeilingMB: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "modelrun_memory_ceiling_mb",
				Help: "Configured memory ceiling.",
			},
		),
		CircuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelrun_circuit_state",
				Help: "Circuit breaker state per registry key: 0=closed, 1=open, 2=half_open.",
			},
			[]string{"registry_key"},
		),
	}
}

// RecordDispatch records the outcome of one dispatch attempt.
func (m *Metrics) RecordDispatch(capability, registryKey, outcome string, seconds float64) {
	m.DispatchTotal.WithLabelValues(capability, registryKey, outcome).Inc()
	m.DispatchDuration.WithLabelValues(capability, registryKey).Observe(seconds)
}

// RecordCircuitRejection records a fast-fail due to an open circuit.
func (m *Metrics) RecordCircuitRejection(registryKey string) {
	m.CircuitRejections.WithLabelValues(registryKey).Inc()
}

// RecordTimeout records a dispatch that exceeded its deadline.
func (m *Metrics) RecordTimeout(registryKey string) {
	m.DispatchTimeouts.WithLabelValues(registryKey).Inc()
}

// RecordError records a dispatch failure with its reason (pool error kind).
func (m *Metrics) RecordError(registryKey, reason string) {
	m.DispatchErrors.WithLabelValues(registryKey, reason).Inc()
}

// CircuitStateValue maps a breaker state's string to this metric's numeric
// encoding.
func CircuitStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}
