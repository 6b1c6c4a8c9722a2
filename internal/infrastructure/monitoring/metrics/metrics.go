// Package metrics registers the application's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds every instrument the application exports.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ResolverRunsTotal    prometheus.Counter
	ResolverIssuesTotal  *prometheus.CounterVec
	ResolverDuration     prometheus.Histogram
	ActiveContractsGauge prometheus.Gauge

	RemindersScannedTotal prometheus.Counter
	RemindersSentTotal    *prometheus.CounterVec
	ReminderScanDuration  prometheus.Histogram

	ExtractionTasksTotal   *prometheus.CounterVec
	ExtractionTaskDuration prometheus.Histogram

	EmailsSentTotal *prometheus.CounterVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	MessagesProcessedTotal *prometheus.CounterVec
}

// New builds a Metrics set on its own registry, including the standard
// process and Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())

	factory := promauto.With(registry)
	const ns = "dealdesk"

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "http_requests_total", Help: "Total HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "http_request_duration_seconds", Help: "HTTP request duration",
			Buckets: defaultDurationBuckets,
		}, []string{"method", "path"}),

		ResolverRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "resolver_runs_total", Help: "Active-record resolutions performed",
		}),
		ResolverIssuesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "resolver_issues_total", Help: "Data integrity issues found while resolving",
		}, []string{"code"}),
		ResolverDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "resolver_duration_seconds", Help: "Active-record resolution duration",
			Buckets: defaultDurationBuckets,
		}),
		ActiveContractsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "active_contracts", Help: "Active contracts seen by the last resolver run",
		}),

		RemindersScannedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "reminders_scanned_total", Help: "Users scanned for due reminders",
		}),
		RemindersSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "reminders_sent_total", Help: "Reminder emails by outcome",
		}, []string{"outcome"}),
		ReminderScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "reminder_scan_duration_seconds", Help: "Full reminder scan duration",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		}),

		ExtractionTasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "extraction_tasks_total", Help: "Document extraction tasks by status",
		}, []string{"status"}),
		ExtractionTaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "extraction_task_duration_seconds", Help: "End-to-end extraction duration",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),

		EmailsSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "emails_sent_total", Help: "Transactional emails by outcome",
		}, []string{"outcome"}),

		CacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_hits_total", Help: "Cache hits",
		}, []string{"cache"}),
		CacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cache_misses_total", Help: "Cache misses",
		}, []string{"cache"}),

		MessagesProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "messages_processed_total", Help: "Consumed messages by topic and outcome",
		}, []string{"topic", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
