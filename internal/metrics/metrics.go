package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the divergence monitor.
type Metrics struct {
	ScansTotal      prometheus.Counter
	ScanErrors      prometheus.Counter
	ScanDuration    prometheus.Histogram
	DivergencesSeen *prometheus.CounterVec // labels: kind
	Notifications   *prometheus.CounterVec // labels: outcome=sent|failed|suppressed
}

// New registers and returns all metrics.
func New() *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kawase_scans_total",
			Help: "Total (symbol, interval) scans executed",
		}),
		ScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kawase_scan_errors_total",
			Help: "Scans that failed to fetch or analyze",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kawase_scan_duration_seconds",
			Help:    "Wall time of a single scan including the market fetch",
			Buckets: prometheus.DefBuckets,
		}),
		DivergencesSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kawase_divergences_total",
			Help: "Divergences completing on the latest closed bar (by kind)",
		}, []string{"kind"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kawase_notifications_total",
			Help: "Notification attempts by outcome",
		}, []string{"outcome"}),
	}
	prometheus.MustRegister(
		m.ScansTotal,
		m.ScanErrors,
		m.ScanDuration,
		m.DivergencesSeen,
		m.Notifications,
	)
	return m
}
