package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 注文確定まわりの指標
type CheckoutMetrics struct {
	Attempts  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// regにnilを渡すと登録しない（テスト用）
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: "orders",
		Name:      "place_attempts_total",
		Help:      "Total number of PlaceOrder attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "checkout",
		Subsystem: "orders",
		Name:      "place_duration_ms",
		Help:      "PlaceOrder latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"outcome"})

	if reg != nil {
		reg.MustRegister(attempts, latency)
	}
	return &CheckoutMetrics{Attempts: attempts, LatencyMS: latency}
}

func (m *CheckoutMetrics) Observe(outcome string, ms float64) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(outcome).Inc()
	m.LatencyMS.WithLabelValues(outcome).Observe(ms)
}

// HTTPの指標
type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "checkout",
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})

	if reg != nil {
		reg.MustRegister(requests, latency)
	}
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// outbox relayの指標
type RelayMetrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox events published to Kafka.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: "outbox",
		Name:      "publish_failures_total",
		Help:      "Outbox publish attempts that failed.",
	})
	if reg != nil {
		reg.MustRegister(published, failures)
	}
	return &RelayMetrics{Published: published, Failures: failures}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
