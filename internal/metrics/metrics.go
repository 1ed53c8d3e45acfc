// Package metrics exposes Prometheus collectors for evaluations, the event
// bus and the HTTP API.
//
// A nil *Metrics is valid and records nothing, so library callers such as the
// CLI can skip instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fairrank"

// Metric names as constants for consistency.
const (
	MetricEvaluationsTotal    = "fairrank_evaluations_total"
	MetricEvaluationDuration  = "fairrank_evaluation_duration_seconds"
	MetricEvaluationItems     = "fairrank_evaluation_items"
	MetricGroupRatio          = "fairrank_group_ratio"
	MetricBusPublishTotal     = "fairrank_bus_publish_total"
	MetricBusPublishDuration  = "fairrank_bus_publish_duration_seconds"
	MetricHTTPRequestsTotal   = "fairrank_http_requests_total"
	MetricHTTPRequestDuration = "fairrank_http_request_duration_seconds"
	MetricHTTPInFlight        = "fairrank_http_requests_in_flight"
	MetricRateLimited         = "fairrank_rate_limited_total"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all application collectors. All operations are thread-safe.
type Metrics struct {
	evaluations        *prometheus.CounterVec // labels: status
	evaluationDuration prometheus.Histogram
	evaluationItems    prometheus.Histogram
	groupRatio         *prometheus.GaugeVec     // labels: feature, metric
	busPublish         *prometheus.CounterVec   // labels: topic, status
	busDuration        *prometheus.HistogramVec // labels: topic
	httpRequests       *prometheus.CounterVec   // labels: method, path, status
	httpDuration       *prometheus.HistogramVec // labels: method, path
	httpInFlight       prometheus.Gauge
	rateLimited        prometheus.Counter
}

// New creates a Metrics instance with all collectors initialized. The
// collectors are not registered; call Register.
func New() *Metrics {
	return &Metrics{
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of fairness evaluations by outcome",
			},
			[]string{"status"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Time to evaluate one dataset, including storing and publishing the report",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8), // 0.5 ms to ~8 s
			},
		),
		evaluationItems: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_items",
				Help:      "Number of ranked items per evaluated dataset",
				Buckets:   prometheus.ExponentialBuckets(10, 10, 6), // 10 to 1M
			},
		),
		groupRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "group_ratio",
				Help:      "Smallest over largest group value of the last evaluation, by sensitive feature and metric",
			},
			[]string{"feature", "metric"},
		),
		busPublish: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_publish_total",
				Help:      "Total number of events published by topic and outcome",
			},
			[]string{"topic", "status"},
		),
		busDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bus_publish_duration_seconds",
				Help:      "Event publish latency by topic",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "path"},
		),
		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests being served",
			},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),
	}
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.evaluations,
		m.evaluationDuration,
		m.evaluationItems,
		m.groupRatio,
		m.busPublish,
		m.busDuration,
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		m.rateLimited,
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// ObserveEvaluation records one evaluation.
func (m *Metrics) ObserveEvaluation(duration time.Duration, items int, err error) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(status(err)).Inc()
	m.evaluationDuration.Observe(duration.Seconds())
	if err == nil {
		m.evaluationItems.Observe(float64(items))
	}
}

// SetGroupRatio records the latest ratio of a metric on a sensitive feature.
func (m *Metrics) SetGroupRatio(feature, metric string, ratio float64) {
	if m == nil {
		return
	}
	m.groupRatio.WithLabelValues(feature, metric).Set(ratio)
}

// RecordBusPublish records one event publish.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.busPublish.WithLabelValues(topic, status(err)).Inc()
	m.busDuration.WithLabelValues(topic).Observe(latency.Seconds())
}

// RecordHTTP records one served HTTP request.
func (m *Metrics) RecordHTTP(method, path string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, statusCode(code)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncRateLimited counts a request rejected by the rate limiter.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
