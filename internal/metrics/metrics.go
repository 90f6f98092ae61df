// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	LedgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrine_ledger_operations_total",
		Help: "Ledger file operations by type and status",
	}, []string{"operation", "status"})

	LedgerWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vitrine_ledger_write_duration_seconds",
		Help:    "Time to read-modify-write the ledger file",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"operation"})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrine_cache_lookups_total",
		Help: "Daily cache lookups by result",
	}, []string{"result"})

	BackupOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrine_backup_operations_total",
		Help: "Backup operations by type and status",
	}, []string{"operation", "status"})

	BackupSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vitrine_backup_size_bytes",
		Help: "Encrypted size of the most recent backup",
	})

	ReconciliationRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitrine_reconciliation_rejections_total",
		Help: "Losses/surplus mutations rejected by the reconciliation check",
	})

	ReportDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrine_report_dispatch_total",
		Help: "Production report e-mails by status",
	}, []string{"status"})
)

// Status maps an error to the status label value.
func Status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
