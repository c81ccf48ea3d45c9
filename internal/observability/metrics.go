package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the batch engine.
type Metrics struct {
	// --- Batch processing ---
	BatchesExecuted *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
	BatchSize       prometheus.Histogram
	BatchSequence   prometheus.Gauge

	// --- Actions ---
	ActionsExecuted *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec

	// --- Verifier & accrual ---
	VerifierFailures *prometheus.CounterVec
	AccrualsApplied  *prometheus.CounterVec
	BadDebtRecorded  *prometheus.CounterVec

	// --- Pool state ---
	PoolUtilization *prometheus.GaugeVec
	PoolBadDebt     *prometheus.GaugeVec

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistBatchesWritten prometheus.Counter
	PersistActionsWritten prometheus.Counter
	PersistBatchDur       prometheus.Histogram
	PersistErrors         *prometheus.CounterVec
	PersistRetry          prometheus.Counter

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		BatchesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_executed_total",
			Help: "Batches processed by outcome (committed/aborted/simulated)",
		}, []string{"outcome"}),

		BatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_duration_seconds",
			Help:    "End-to-end batch orchestration time",
			Buckets: latencyBuckets,
		}, []string{"outcome"}),

		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_actions_per_batch",
			Help:    "Actions per submitted batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),

		BatchSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "batch_sequence",
			Help: "Current global event sequence number",
		}),

		ActionsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_actions_executed_total",
			Help: "Actions executed by kind and result",
		}, []string{"kind", "result"}),

		ActionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_action_duration_seconds",
			Help:    "Time in one handler plus its verifier pass",
			Buckets: latencyBuckets,
		}, []string{"kind"}),

		VerifierFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_verifier_failures_total",
			Help: "Aborts by error class (validation/capacity/solvency/collaborator)",
		}, []string{"class"}),

		AccrualsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_accruals_applied_total",
			Help: "Debt index advances per pool",
		}, []string{"pool_id"}),

		BadDebtRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_bad_debt_recorded_total",
			Help: "Bad-debt value booked from full liquidations",
		}, []string{"pool_id"}),

		PoolUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_pool_utilization_ppm",
			Help: "Pool debt/collateral utilization in ppm",
		}, []string{"pool_id"}),

		PoolBadDebt: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_pool_bad_debt",
			Help: "Outstanding pool bad-debt liability",
		}, []string{"pool_id"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "batch_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "batch_persist_backpressure_total",
			Help: "Times the orchestrator blocked on the persist channel",
		}),

		PersistBatchesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "batch_persist_batches_written_total",
			Help: "Batch records written to Postgres",
		}),

		PersistActionsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "batch_persist_actions_written_total",
			Help: "Action effect records written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_persist_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "batch_persist_retry_total",
			Help: "Persistence retries",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "batch_snapshot_taken_total",
			Help: "Ledger snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "batch_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
