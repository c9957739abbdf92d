package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

// Metrics holds the HTTP and allocation collectors. It implements
// allocation.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	tokensAllocated    *prometheus.CounterVec
	tokensReleased     *prometheus.CounterVec
	tokensPreempted    prometheus.Counter
	tokensPromoted     prometheus.Counter
	emergencyOverflows prometheus.Counter
}

var _ allocation.Recorder = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		tokensAllocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opd_tokens_allocated_total",
			Help: "Tokens created, by source.",
		}, []string{"source"}),
		tokensReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opd_tokens_released_total",
			Help: "Tokens that gave their capacity back, by final status.",
		}, []string{"status"}),
		tokensPreempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opd_tokens_preempted_total",
			Help: "Tokens moved to a later slot to make room for an emergency.",
		}),
		tokensPromoted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opd_tokens_promoted_total",
			Help: "Waiting tokens moved back into a better slot.",
		}),
		emergencyOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opd_emergency_overflow_total",
			Help: "Emergency insertions that pushed a slot past its max capacity.",
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.tokensAllocated, m.tokensReleased, m.tokensPreempted, m.tokensPromoted, m.emergencyOverflows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Instrument records RPS, latency and in-flight requests labelled by the chi
// route pattern, so token ids do not explode label cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

func (m *Metrics) TokenAllocated(source allocation.Source) {
	m.tokensAllocated.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) TokenReleased(status allocation.TokenStatus) {
	m.tokensReleased.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) TokenPreempted() {
	m.tokensPreempted.Inc()
}

func (m *Metrics) TokenPromoted() {
	m.tokensPromoted.Inc()
}

func (m *Metrics) EmergencyOverflow() {
	m.emergencyOverflows.Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
