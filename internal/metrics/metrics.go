// Package metrics exports the crawler's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "content_crawler"

// Metrics holds every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	// Job metrics
	JobsStarted  *prometheus.CounterVec
	JobsFinished *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	JobsRunning  prometheus.Gauge

	// Crawl and analysis metrics
	CrawlItems    *prometheus.CounterVec
	AnalysisCalls *prometheus.CounterVec

	// Rate limiter
	RateLimitWait *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, alongside the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Jobs accepted, by operation",
		}, []string{"operation"}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status",
		}, []string{"operation", "status"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from job start to terminal status",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"operation"}),
		JobsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Jobs currently running",
		}),
		CrawlItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_items_total",
			Help:      "Crawled candidates by source and outcome (inserted, updated, duplicate, failed)",
		}, []string{"source", "outcome"}),
		AnalysisCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_calls_total",
			Help:      "Quality analysis attempts by outcome",
		}, []string{"outcome"}),
		RateLimitWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for a rate limiter slot",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"key"}),
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobStarted records an accepted job.
func (m *Metrics) JobStarted(operation string) {
	m.JobsStarted.WithLabelValues(operation).Inc()
	m.JobsRunning.Inc()
}

// JobFinished records a terminal job and its duration.
func (m *Metrics) JobFinished(operation, status string, d time.Duration) {
	m.JobsFinished.WithLabelValues(operation, status).Inc()
	m.JobDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.JobsRunning.Dec()
}

// CrawlItem counts one candidate outcome.
func (m *Metrics) CrawlItem(source, outcome string) {
	m.CrawlItems.WithLabelValues(source, outcome).Inc()
}

// Analysis counts one analysis outcome.
func (m *Metrics) Analysis(outcome string) {
	m.AnalysisCalls.WithLabelValues(outcome).Inc()
}

// RateLimitWaited observes one limiter wait. Its signature matches
// ratelimit.WaitObserver.
func (m *Metrics) RateLimitWaited(key string, waited time.Duration) {
	m.RateLimitWait.WithLabelValues(key).Observe(waited.Seconds())
}
