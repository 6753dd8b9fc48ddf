package httpx

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// apiMetrics groups the collectors exported by the router. Collectors are
// registered once per process; later routers reuse the registered ones.
type apiMetrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	rateLimited   *prometheus.CounterVec
	streamClients prometheus.Gauge
}

var (
	sharedMetricsOnce sync.Once
	sharedMetrics     *apiMetrics
)

func loadMetrics() *apiMetrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = &apiMetrics{
			requests: register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stackgen",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Count of processed HTTP requests",
			}, []string{"method", "route", "status"})),
			// Publishing runs git synchronously, so the buckets extend to the git timeout.
			latency: register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stackgen",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers",
				Buckets:   latencyBuckets,
			}, []string{"method", "route", "status"})),
			rateLimited: register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stackgen",
				Subsystem: "api",
				Name:      "rate_limit_hits_total",
				Help:      "Number of rate-limited responses",
			}, []string{"route", "key"})),
			streamClients: register(prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stackgen",
				Subsystem: "api",
				Name:      "history_stream_clients",
				Help:      "Open websocket connections on the history stream",
			})),
		}
	})
	return sharedMetrics
}

func register[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *apiMetrics) observeRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requests.With(labels).Inc()
	m.latency.With(labels).Observe(duration.Seconds())
}

func (m *apiMetrics) rateLimitHit(route, key string) {
	if m == nil {
		return
	}
	m.rateLimited.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

func (m *apiMetrics) streamOpened() {
	if m != nil {
		m.streamClients.Inc()
	}
}

func (m *apiMetrics) streamClosed() {
	if m != nil {
		m.streamClients.Dec()
	}
}
