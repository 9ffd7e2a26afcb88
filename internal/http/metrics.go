package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

type routerMetrics struct {
	registry       *prometheus.Registry
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	streamClients  *prometheus.GaugeVec
}

func newRouterMetrics() *routerMetrics {
	m := &routerMetrics{registry: prometheus.NewRegistry()}
	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookreview",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	m.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookreview",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	m.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookreview",
		Subsystem: "api",
		Name:      "rate_limit_hits_total",
		Help:      "Number of rate-limited responses",
	}, []string{"route", "key"})

	m.streamClients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bookreview",
		Subsystem: "api",
		Name:      "review_stream_clients",
		Help:      "Connected live review feed clients",
	}, []string{"transport"})

	m.registry.MustRegister(
		m.requestTotal,
		m.requestLatency,
		m.rateLimitHits,
		m.streamClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *routerMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if r.metrics == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.metrics.requestTotal.With(labels).Inc()
	r.metrics.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	if r.metrics == nil {
		return
	}
	r.metrics.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

func (r *Router) trackStreamClient(transport string, delta float64) {
	if r.metrics == nil {
		return
	}
	r.metrics.streamClients.WithLabelValues(transport).Add(delta)
}
