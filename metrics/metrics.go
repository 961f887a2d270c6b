package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "relay_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	storeWrites *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
)

// Init registers the service metrics. Safe to call more than once.
// Observation helpers are no-ops until Init has run, so packages can
// be used in tests without a registry.
func Init() {
	registerOnce.Do(func() {
		upstreamRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_requests_total",
				Help: "Total upstream feed requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		)
		upstreamLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upstream_latency_seconds",
				Help:    "Upstream feed latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		)
		storeWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_writes_total",
				Help: "Total observation store writes by operation and result",
			},
			[]string{"op", "result"},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by path and status code",
			},
			[]string{"path", "code"},
		)

		prometheus.MustRegister(
			upstreamRequests,
			upstreamLatency,
			storeWrites,
			httpRequests,
		)
	})
}

// Handler exposes the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveUpstream(endpoint string, d time.Duration, err error) {
	if upstreamRequests == nil {
		return
	}
	upstreamRequests.WithLabelValues(endpoint, resultLabel(err)).Inc()
	upstreamLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

func ObserveStoreWrite(op string, err error) {
	if storeWrites == nil {
		return
	}
	storeWrites.WithLabelValues(op, resultLabel(err)).Inc()
}

func ObserveHTTP(path string, code int) {
	if httpRequests == nil {
		return
	}
	httpRequests.WithLabelValues(path, strconv.Itoa(code)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
