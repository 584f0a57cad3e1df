package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus counters, histograms, and gauges for one
// pipeline run. Every Metrics owns a private registry: a batch process has
// no scrape endpoint, so the run pushes a single snapshot to a Pushgateway
// on exit instead, and tests can create as many instances as they like
// without "already registered" panics.
type Metrics struct {
	registry *prometheus.Registry

	// Archive acquisition.
	YearsFetched  prometheus.Counter
	CacheHits     prometheus.Counter
	FetchRetries  prometheus.Counter
	FetchDuration prometheus.Histogram

	// Extraction shape.
	CellsSelected prometheus.Gauge
	DaysProcessed prometheus.Gauge

	// Raster output.
	RastersWritten *prometheus.CounterVec // label: kind={daily,monthly,netcdf}
	ExportDuration prometheus.Histogram

	// Run lifecycle.
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Gauge
}

// NewMetrics creates a metric set registered on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		YearsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imd_etl",
			Name:      "years_fetched_total",
			Help:      "Year files downloaded from the archive source.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imd_etl",
			Name:      "cache_hits_total",
			Help:      "Year files served from the local cache without a download.",
		}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imd_etl",
			Name:      "fetch_retries_total",
			Help:      "Download attempts after the first failure.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "imd_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one year file download.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CellsSelected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imd_etl",
			Name:      "cells_selected",
			Help:      "Grid cells inside the area of interest.",
		}),
		DaysProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imd_etl",
			Name:      "days_processed",
			Help:      "Daily fields inside the extraction window.",
		}),
		RastersWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imd_etl",
			Name:      "rasters_written_total",
			Help:      "Output artifacts written, by kind.",
		}, []string{"kind"}),
		ExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "imd_etl",
			Name:      "export_duration_seconds",
			Help:      "Duration of one raster write.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imd_etl",
			Name:      "pipeline_running",
			Help:      "1 while the pipeline is active, 0 once finished.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imd_etl",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the completed run.",
		}),
	}

	m.registry.MustRegister(
		m.YearsFetched,
		m.CacheHits,
		m.FetchRetries,
		m.FetchDuration,
		m.CellsSelected,
		m.DaysProcessed,
		m.RastersWritten,
		m.ExportDuration,
		m.PipelineRunning,
		m.RunDuration,
	)

	return m
}

// Push delivers the run's snapshot to a Pushgateway under the given job
// name. Grouped by job only; one batch run replaces the previous one.
func (m *Metrics) Push(url, job string) error {
	return push.New(url, job).Gatherer(m.registry).Push()
}
