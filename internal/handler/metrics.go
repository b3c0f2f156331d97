package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nuln/fstream"
)

// Metrics holds the server's prometheus collectors on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	bytes     *prometheus.CounterVec
	transfers *prometheus.CounterVec
	requests  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with a fresh
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fstream",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved through the streaming bridge.",
		}, []string{"direction"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fstream",
			Name:      "transfers_total",
			Help:      "Finished transfers by direction and outcome.",
		}, []string{"direction", "outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fstream",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"method", "status"}),
	}
	m.registry.MustRegister(m.bytes, m.transfers, m.requests)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeTransfer records one finished transfer. direction is "in" or "out".
func (m *Metrics) observeTransfer(direction string, n int64, err error) {
	m.bytes.WithLabelValues(direction).Add(float64(n))
	m.transfers.WithLabelValues(direction, outcome(err)).Inc()
}

func (m *Metrics) observeRequest(method string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, fstream.ErrCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}
