// Package metrics exposes Prometheus collectors for refreshes and exports.
//
// Init registers the collectors once with the default registry. The Observe
// helpers are no-ops until Init has run, so packages can call them
// unconditionally (tests never call Init).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "ipampa_"

	// ResultSuccess and ResultError are the values of the "result" label.
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	refreshTotal   *prometheus.CounterVec
	refreshLatency *prometheus.HistogramVec
	droppedTotal   *prometheus.CounterVec

	datasetIndices prometheus.Gauge
	datasetValues  prometheus.Gauge

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
	exportBytes   *prometheus.HistogramVec

	fetchBytes prometheus.Histogram
)

// Init registers the collectors with the default registry.
func Init() {
	registerOnce.Do(func() {
		refreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_total",
				Help: "Total refreshes by result and the phase they ended in",
			},
			[]string{"result", "phase"},
		)
		refreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "refresh_latency_seconds",
				Help:    "Refresh latency in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"result"},
		)
		droppedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_dropped_total",
				Help: "Rows and cells left out of refreshes by reason",
			},
			[]string{"kind"},
		)

		datasetIndices = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "dataset_indices",
				Help: "Indices loaded by the last successful refresh",
			},
		)
		datasetValues = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "dataset_values",
				Help: "Value points loaded by the last successful refresh",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		exportBytes = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_bytes",
				Help:    "Size of export payloads",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"format"},
		)

		fetchBytes = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "source_fetch_bytes",
				Help:    "Size of archives fetched from the source",
				Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10),
			},
		)

		prometheus.MustRegister(
			refreshTotal,
			refreshLatency,
			droppedTotal,
			datasetIndices,
			datasetValues,
			exportTotal,
			exportLatency,
			exportBytes,
			fetchBytes,
		)
	})
}

// ObserveRefresh records a refresh outcome and latency.
func ObserveRefresh(result, phase string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if phase == "" {
		phase = "unknown"
	}
	if refreshTotal != nil {
		refreshTotal.WithLabelValues(result, phase).Inc()
	}
	if refreshLatency != nil {
		refreshLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddDropped adds count drops of the given kind.
func AddDropped(kind string, count int) {
	if count <= 0 {
		return
	}
	if droppedTotal != nil {
		droppedTotal.WithLabelValues(kind).Add(float64(count))
	}
}

// SetDatasetSize records the size of the dataset after a successful refresh.
func SetDatasetSize(indices, values int) {
	if datasetIndices != nil {
		datasetIndices.Set(float64(indices))
	}
	if datasetValues != nil {
		datasetValues.Set(float64(values))
	}
}

// ObserveExport records an export outcome, latency and payload size.
func ObserveExport(format, result string, duration time.Duration, size int) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
	if exportBytes != nil && result == ResultSuccess {
		exportBytes.WithLabelValues(format).Observe(float64(size))
	}
}

// ObserveFetch records the size of a fetched archive.
func ObserveFetch(size int) {
	if fetchBytes != nil {
		fetchBytes.Observe(float64(size))
	}
}

// Result maps an error to a result label value.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
