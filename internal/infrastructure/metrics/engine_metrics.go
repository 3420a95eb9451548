package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics contains Prometheus metrics for monitoring saga engine performance.
type EngineMetrics struct {
	SagasRunning       prometheus.Gauge
	SagasFinished      *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	RejectedTotal      *prometheus.CounterVec
	CompensationsTotal prometheus.Counter
	RecoveriesTotal    *prometheus.CounterVec
	StateSavesTotal    *prometheus.CounterVec
	CleanupDeleted     prometheus.Counter
}

// NewEngineMetrics creates and registers engine metrics with the given registerer.
func NewEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	metrics := &EngineMetrics{
		SagasRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sagaflow_engine_sagas_running",
			Help: "Current number of sagas executing",
		}),
		SagasFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sagaflow_engine_sagas_finished_total",
				Help: "Total number of finished saga executions",
			},
			[]string{"saga_name", "status"}, // status: completed/failed/cancelled/compensated
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sagaflow_engine_execution_duration_seconds",
				Help:    "End-to-end saga execution duration",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"saga_name"},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sagaflow_engine_rejected_total",
				Help: "Total number of rejected executions",
			},
			[]string{"reason"}, // reason: capacity/duplicate
		),
		CompensationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sagaflow_engine_compensations_total",
			Help: "Total number of compensation runs",
		}),
		RecoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sagaflow_engine_recoveries_total",
				Help: "Total number of saga recovery attempts",
			},
			[]string{"status"}, // status: success/failed
		),
		StateSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sagaflow_engine_state_saves_total",
				Help: "Total number of saga state persistence attempts",
			},
			[]string{"status"}, // status: success/failed
		),
		CleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sagaflow_engine_cleanup_deleted_total",
			Help: "Total number of saga snapshots deleted by retention cleanup",
		}),
	}

	// Register all metrics
	registerer.MustRegister(
		metrics.SagasRunning,
		metrics.SagasFinished,
		metrics.ExecutionDuration,
		metrics.RejectedTotal,
		metrics.CompensationsTotal,
		metrics.RecoveriesTotal,
		metrics.StateSavesTotal,
		metrics.CleanupDeleted,
	)

	return metrics
}
