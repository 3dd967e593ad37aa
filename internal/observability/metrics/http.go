package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics captures request-level signals for the HTTP surface.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewHTTPMetrics registers HTTP instruments on the default registry.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	return newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cirrus"
	}
	constLabels := prometheus.Labels{"service": serviceName}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cirrus_http_requests_total",
		Help:        "HTTP requests by route, method and status.",
		ConstLabels: constLabels,
	}, []string{"route", "method", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cirrus_http_request_duration_seconds",
		Help:        "HTTP request latency by route and method.",
		ConstLabels: constLabels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"route", "method"})

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "cirrus_http_requests_in_flight",
		Help:        "HTTP requests currently being served.",
		ConstLabels: constLabels,
	})

	for _, collector := range []prometheus.Collector{requests, duration, inflight} {
		if err := registerer.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					requests = existing
				case *prometheus.HistogramVec:
					duration = existing
				case prometheus.Gauge:
					inflight = existing
				}
				continue
			}
		}
	}

	return &HTTPMetrics{
		requests: requests,
		duration: duration,
		inflight: inflight,
	}
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		m.inflight.Inc()
		c.Next()
		m.inflight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.requests.WithLabelValues(route, method, status).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
