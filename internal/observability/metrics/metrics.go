package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "feeledger_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	receiptOps     *prometheus.CounterVec
	receiptLatency *prometheus.HistogramVec

	recomputeRewritten prometheus.Counter
	recomputeLatency   prometheus.Histogram

	rolloverOps      *prometheus.CounterVec
	rolloverStudents *prometheus.CounterVec

	duesLatency *prometheus.HistogramVec
)

func init() {
	receiptOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "receipt_ops_total",
			Help: "Total receipt lifecycle operations by op and result",
		},
		[]string{"op", "result"},
	)
	receiptLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "receipt_op_latency_seconds",
			Help:    "Receipt lifecycle operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)
	recomputeRewritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "recompute_entries_rewritten_total",
			Help: "Ledger entries whose cached balance was rewritten by recomputation",
		},
	)
	recomputeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "recompute_latency_seconds",
			Help:    "Balance recomputation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	rolloverOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "rollover_ops_total",
			Help: "Total session rollover operations by op and result",
		},
		[]string{"op", "result"},
	)
	rolloverStudents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "rollover_students_total",
			Help: "Students touched by rollover operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)
	duesLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "dues_latency_seconds",
			Help:    "Expected dues calculation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
}

// Collectors returns the engine collectors, for registering on a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		receiptOps,
		receiptLatency,
		recomputeRewritten,
		recomputeLatency,
		rolloverOps,
		rolloverStudents,
		duesLatency,
	}
}

// Init registers engine metrics and DB-backed gauges on the default registry.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		prometheus.MustRegister(Collectors()...)
		if db != nil {
			registerDBMetrics(prometheus.DefaultRegisterer, db, logger)
		}
	})
}

// ObserveReceiptOp records a receipt create/edit/cancel.
func ObserveReceiptOp(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	receiptOps.WithLabelValues(op, result).Inc()
	receiptLatency.WithLabelValues(op, result).Observe(duration.Seconds())
}

// ObserveRecompute records a recomputation and how many cached balances changed.
func ObserveRecompute(rewritten int, duration time.Duration) {
	if rewritten > 0 {
		recomputeRewritten.Add(float64(rewritten))
	}
	recomputeLatency.Observe(duration.Seconds())
}

// IncRolloverOp increments the rollover operation counter.
func IncRolloverOp(op, result string) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	rolloverOps.WithLabelValues(op, result).Inc()
}

// AddRolloverStudents counts students charged, carried or skipped by a rollover op.
func AddRolloverStudents(op, outcome string, count int) {
	if count <= 0 {
		return
	}
	rolloverStudents.WithLabelValues(op, outcome).Add(float64(count))
}

// ObserveDues records a dues calculation.
func ObserveDues(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	duesLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	OpCreate = "create"
	OpEdit   = "edit"
	OpCancel = "cancel"

	OpCopyFeeStructures = "copy_fee_structures"
	OpCarryForward      = "carry_forward"
	OpChargeFees        = "charge_fees"
	OpAdjustOpening     = "adjust_opening_balance"

	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
)
