package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrorCodeKey is the context key under which the code of a written error
// envelope is recorded, so refusals such as access_denied or rate_limited can
// be counted apart from transport failures.
const ErrorCodeKey = "api.error_code"

// httpMetrics groups the HTTP collectors. Labels stay bounded: the Gin route
// template (raw path only when nothing matched), the method and the status.
type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inflight prometheus.Gauge
	size     *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

var defaultHTTPMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)

const (
	metricsNamespace = "connect_gate"
	metricsSubsystem = "http"
)

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	return &httpMetrics{
		requests: counter("requests_total", "HTTP requests by route and status.", "method", "route", "status"),
		latency:  histogram("request_duration_seconds", "HTTP request latency.", prometheus.DefBuckets, "method", "route"),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "requests_inflight", Help: "HTTP requests being served.",
		}),
		// 256 B .. 1 MiB; message pages are the largest bodies.
		size:   histogram("response_size_bytes", "HTTP response body size.", prometheus.ExponentialBuckets(256, 4, 7), "method", "route"),
		errors: counter("api_errors_total", "Error envelopes by route and code.", "route", "code"),
	}
}

// Metrics instruments every request into the default Prometheus registry.
// Serve it with promhttp.Handler().
func Metrics() gin.HandlerFunc {
	return defaultHTTPMetrics.handler()
}

func (m *httpMetrics) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.inflight.Inc()
		defer m.inflight.Dec()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		method := c.Request.Method

		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			m.size.WithLabelValues(method, route).Observe(float64(n))
		}
		if code := c.GetString(ErrorCodeKey); code != "" {
			m.errors.WithLabelValues(route, code).Inc()
		}
	}
}
