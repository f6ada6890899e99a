// Package metrics exports Prometheus counters for scans.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoquery_batches_total",
			Help: "Total number of result batches fetched from the backend",
		},
		[]string{"mode"},
	)
	rows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoquery_rows_total",
			Help: "Total number of rows returned to callers",
		},
		[]string{"mode"},
	)
	skipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoquery_rows_skipped_total",
			Help: "Total number of rows dropped after a geometry parse failure",
		},
		[]string{"mode"},
	)
	failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoquery_scan_failures_total",
			Help: "Total number of scans ending in an error",
		},
		[]string{"mode", "stage"},
	)
)

func label(mode string) string {
	if mode == "" {
		return "unknown"
	}
	return mode
}

// IncBatches counts one fetched batch.
func IncBatches(mode string) { batches.WithLabelValues(label(mode)).Inc() }

// AddRows counts rows handed to the caller.
func AddRows(mode string, n int) {
	if n > 0 {
		rows.WithLabelValues(label(mode)).Add(float64(n))
	}
}

// IncSkipped counts one row dropped by the skip policy.
func IncSkipped(mode string) { skipped.WithLabelValues(label(mode)).Inc() }

// IncFailures counts a failed scan. stage is "fetch" or "decode".
func IncFailures(mode, stage string) { failures.WithLabelValues(label(mode), stage).Inc() }

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
