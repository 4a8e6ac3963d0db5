// Package metrics records catalog calls and publish progress as Prometheus
// metrics and can write them to a node-exporter textfile.
package metrics

import (
	"strconv"
	"time"

	"github.com/fulmenhq/reportdeploy/internal/artifacts"
	"github.com/fulmenhq/reportdeploy/internal/publish"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives measurements from an instrumented catalog and from the
// orchestrator's progress events.
type Recorder interface {
	publish.Reporter

	// RecordCall records one catalog round trip.
	RecordCall(operation string, duration time.Duration, success bool)
}

// PrometheusRecorder implements Recorder on a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	itemsTotal    *prometheus.CounterVec
	warningsTotal *prometheus.CounterVec
	rebindsTotal  *prometheus.CounterVec
	inFlight      prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder and registers its metrics.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportdeploy_catalog_calls_total",
				Help: "Total number of catalog operations performed",
			},
			[]string{"operation", "success"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reportdeploy_catalog_call_duration_seconds",
				Help:    "Duration of catalog operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 100},
			},
			[]string{"operation", "success"},
		),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportdeploy_items_total",
				Help: "Total number of items processed by kind and outcome",
			},
			[]string{"kind", "success"},
		),
		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportdeploy_warnings_total",
				Help: "Total number of warnings returned for published items",
			},
			[]string{"kind"},
		),
		rebindsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportdeploy_rebinds_total",
				Help: "Total number of data-source bindings repointed",
			},
			[]string{"kind"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reportdeploy_items_in_flight",
				Help: "Number of items currently being published",
			},
		),
	}

	r.registry.MustRegister(
		r.callsTotal,
		r.callDuration,
		r.itemsTotal,
		r.warningsTotal,
		r.rebindsTotal,
		r.inFlight,
	)
	return r
}

// Registry exposes the registry the metrics live on.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordCall implements Recorder.
func (r *PrometheusRecorder) RecordCall(operation string, duration time.Duration, success bool) {
	s := strconv.FormatBool(success)
	r.callsTotal.WithLabelValues(operation, s).Inc()
	r.callDuration.WithLabelValues(operation, s).Observe(duration.Seconds())
}

// ItemStarted implements publish.Reporter.
func (r *PrometheusRecorder) ItemStarted(artifacts.Kind, string, string) {
	r.inFlight.Inc()
}

// ItemFinished implements publish.Reporter.
func (r *PrometheusRecorder) ItemFinished(res *publish.Result) {
	r.inFlight.Dec()
	kind := string(res.Kind)
	r.itemsTotal.WithLabelValues(kind, "true").Inc()
	r.warningsTotal.WithLabelValues(kind).Add(float64(len(res.Warnings)))
	r.rebindsTotal.WithLabelValues(kind).Add(float64(len(res.Rebound)))
}

// ItemFailed implements publish.Reporter.
func (r *PrometheusRecorder) ItemFailed(kind artifacts.Kind, _ string, _ error) {
	r.inFlight.Dec()
	r.itemsTotal.WithLabelValues(string(kind), "false").Inc()
}

// WriteTextfile writes the current values in the text exposition format,
// atomically replacing path.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
