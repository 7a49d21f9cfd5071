// Package monitoring exposes dashboard metrics and pushes live updates to open pages.
package monitoring

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modeldash/results"
)

const namespace = "modeldash"

// Metrics holds the Prometheus collectors of the dashboard. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	loads          *prometheus.CounterVec
	loadDuration   prometheus.Histogram
	recordsLoaded  prometheus.Gauge
	skippedFiles   prometheus.Counter
	cacheRequests  *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	wsClients      prometheus.Gauge
	wsMessagesSent *prometheus.CounterVec
}

var _ results.Observer = (*Metrics)(nil)

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_loads_total",
			Help:      "Scans of the results directory, by outcome.",
		}, []string{"outcome"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_load_duration_seconds",
			Help:      "Time spent scanning and decoding the results directory.",
			Buckets:   prometheus.DefBuckets,
		}),
		recordsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "results_records",
			Help:      "Records in the most recent successful load.",
		}),
		skippedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_skipped_files_total",
			Help:      "Result files skipped because they could not be decoded.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_cache_requests_total",
			Help:      "Results cache lookups, by result.",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_uploads_total",
			Help:      "Uploaded datasets, by outcome.",
		}, []string{"outcome"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected live-update clients.",
		}),
		wsMessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_total",
			Help:      "Messages queued for broadcast, by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.loads,
		m.loadDuration,
		m.recordsLoaded,
		m.skippedFiles,
		m.cacheRequests,
		m.uploads,
		m.wsClients,
		m.wsMessagesSent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit(string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss(string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("miss").Inc()
}

func (m *Metrics) LoadCompleted(_ string, elapsed time.Duration, records, skipped int, err error) {
	if m == nil {
		return
	}
	m.loadDuration.Observe(elapsed.Seconds())
	switch {
	case errors.Is(err, results.ErrMissingDirectory):
		m.loads.WithLabelValues("missing_directory").Inc()
	case err != nil:
		m.loads.WithLabelValues("error").Inc()
	default:
		m.loads.WithLabelValues("ok").Inc()
		m.recordsLoaded.Set(float64(records))
		m.skippedFiles.Add(float64(skipped))
	}
}

// Upload outcomes.
const (
	UploadOK      = "ok"
	UploadEmpty   = "empty"
	UploadInvalid = "invalid"
)

// UploadProcessed counts one dataset upload.
func (m *Metrics) UploadProcessed(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

func (m *Metrics) messageSent(t MessageType) {
	if m == nil {
		return
	}
	m.wsMessagesSent.WithLabelValues(string(t)).Inc()
}
