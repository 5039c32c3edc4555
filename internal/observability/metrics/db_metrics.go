package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(reg prometheus.Registerer, db *sql.DB, logger *log.Logger) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "active_receipts",
			Help: "Receipts that are not cancelled",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM receipts WHERE is_cancelled = FALSE")
		},
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "ledger_entries",
			Help: "Ledger entries stored",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM ledger_entries")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
