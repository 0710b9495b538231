package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all library metrics. A nil *Metrics is valid and records
// nothing, so components can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Scan metrics
	ScansTotal       *prometheus.CounterVec
	ScanDuration     prometheus.Histogram
	TracksDiscovered prometheus.Counter
	SourcesSkipped   *prometheus.CounterVec

	// Catalog metrics
	CatalogTracks      prometheus.Gauge
	StorageErrorsTotal *prometheus.CounterVec

	// Playback metrics
	PlaysTotal prometheus.Counter
}

// NewMetrics creates a Metrics instance backed by its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedeck_scans_total",
				Help: "Total number of library scans",
			},
			[]string{"status"},
		),
		ScanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tunedeck_scan_duration_seconds",
				Help:    "Duration of library scans in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		TracksDiscovered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tunedeck_tracks_discovered_total",
				Help: "Total number of tracks accepted by the scanner",
			},
		),
		SourcesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedeck_sources_skipped_total",
				Help: "Total number of sources skipped by the scanner",
			},
			[]string{"reason"},
		),

		CatalogTracks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tunedeck_catalog_tracks",
				Help: "Number of tracks in the catalog",
			},
		),
		StorageErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunedeck_storage_errors_total",
				Help: "Total number of failed catalog storage operations",
			},
			[]string{"op"},
		),

		PlaysTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tunedeck_plays_total",
				Help: "Total number of track plays",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordScan records the outcome of a finished scan
func (m *Metrics) RecordScan(status string, started time.Time, discovered int) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(status).Inc()
	m.ScanDuration.Observe(time.Since(started).Seconds())
	m.TracksDiscovered.Add(float64(discovered))
}

// RecordSkip counts a source dropped by the scanner
func (m *Metrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	m.SourcesSkipped.WithLabelValues(reason).Inc()
}

// RecordStorageError counts a failed catalog read or write
func (m *Metrics) RecordStorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrorsTotal.WithLabelValues(op).Inc()
}

// RecordPlay counts a track play
func (m *Metrics) RecordPlay() {
	if m == nil {
		return
	}
	m.PlaysTotal.Inc()
}

// SetCatalogSize updates the catalog track gauge
func (m *Metrics) SetCatalogSize(n int) {
	if m == nil {
		return
	}
	m.CatalogTracks.Set(float64(n))
}
