package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensord"

// MetricsCollector owns a private Prometheus registry with the responder's
// request, reading and stream metrics.
type MetricsCollector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	readingsServed  prometheus.Counter
	readingErrors   prometheus.Counter
	rateLimited     prometheus.Counter
	streamClients   prometheus.Gauge
	streamMessages  prometheus.Counter
	startTime       time.Time
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time spent serving HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"route"}),
		readingsServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_served_total",
			Help:      "Sensor readings written to clients.",
		}),
		readingErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reading_errors_total",
			Help:      "Readings that could not be obtained or encoded.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		streamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected websocket stream clients.",
		}),
		streamMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Readings pushed over websocket streams.",
		}),
		startTime: time.Now(),
	}
}

// RecordRequest records a finished request
func (mc *MetricsCollector) RecordRequest(route, method string, status int, d time.Duration) {
	mc.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	mc.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordReading records a reading written to a client
func (mc *MetricsCollector) RecordReading() {
	mc.readingsServed.Inc()
}

// RecordReadingError records a provider or encoding failure
func (mc *MetricsCollector) RecordReadingError() {
	mc.readingErrors.Inc()
}

// RecordRateLimitedRequest records a rate-limited request
func (mc *MetricsCollector) RecordRateLimitedRequest() {
	mc.rateLimited.Inc()
}

// StreamOpened records a new websocket stream client
func (mc *MetricsCollector) StreamOpened() {
	mc.streamClients.Inc()
}

// StreamClosed records a websocket stream client going away
func (mc *MetricsCollector) StreamClosed() {
	mc.streamClients.Dec()
}

// RecordStreamMessage records a reading pushed over a stream
func (mc *MetricsCollector) RecordStreamMessage() {
	mc.streamMessages.Inc()
	mc.readingsServed.Inc()
}

// Uptime returns the time since the collector was created
func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.startTime)
}

// Registry exposes the underlying registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// MetricsHandler returns an HTTP handler serving the Prometheus exposition format
func (mc *MetricsCollector) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// Middleware records every request passing through it. route maps a
// request to a bounded label value.
func (mc *MetricsCollector) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			mc.RecordRequest(route(r), methodLabel(r.Method), m.Code, m.Duration)
		})
	}
}

// methodLabel bounds the method label to the registered HTTP methods.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodConnect,
		http.MethodOptions, http.MethodTrace:
		return method
	default:
		return "other"
	}
}
