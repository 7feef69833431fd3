// Package metrics defines the Prometheus collectors exported by the Flight server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server collectors.
type Metrics struct {
	// Requests counts Flight RPCs by method and gRPC status code.
	Requests *prometheus.CounterVec
	// ScanDuration is the time spent producing and streaming a DoGet result.
	ScanDuration *prometheus.HistogramVec
	// Rows counts rows streamed to clients per collection.
	Rows *prometheus.CounterVec
	// FilterCache counts decoded-filter cache lookups by result (hit, miss).
	FilterCache *prometheus.CounterVec
	// Plans counts planned queries by access path (index, scan).
	Plans *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docquery_flight_requests_total",
				Help: "Total number of Flight requests",
			},
			[]string{"method", "code"},
		),
		ScanDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docquery_scan_duration_seconds",
				Help:    "Time spent scanning and streaming a collection",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection"},
		),
		Rows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docquery_rows_streamed_total",
				Help: "Total number of rows streamed to clients",
			},
			[]string{"collection"},
		),
		FilterCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docquery_filter_cache_lookups_total",
				Help: "Decoded filter cache lookups",
			},
			[]string{"result"},
		),
		Plans: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docquery_query_plans_total",
				Help: "Planned queries by access path",
			},
			[]string{"path"},
		),
	}
}
