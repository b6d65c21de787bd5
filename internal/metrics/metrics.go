// Package metrics provides Prometheus metrics for the metadata service
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of the service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Aggregation metrics
	RefreshesTotal   *prometheus.CounterVec
	RefreshDuration  *prometheus.HistogramVec
	CommonsRecords   *prometheus.GaugeVec
	LastRefreshStamp *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mds_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "mds_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	m.RefreshesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mds_aggregate_refreshes_total",
			Help: "Total number of commons refresh attempts",
		},
		[]string{"commons", "result"},
	)

	m.RefreshDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mds_aggregate_refresh_duration_seconds",
			Help:    "Duration of commons refreshes in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"commons"},
	)

	m.CommonsRecords = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mds_aggregate_commons_records",
			Help: "Number of records in the current snapshot of a commons",
		},
		[]string{"commons"},
	)

	m.LastRefreshStamp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mds_aggregate_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh of a commons",
		},
		[]string{"commons"},
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRefresh records one commons refresh attempt
func (m *Metrics) ObserveRefresh(commons string, success bool, records int, elapsed time.Duration) {
	result := "error"
	if success {
		result = "success"
		m.CommonsRecords.WithLabelValues(commons).Set(float64(records))
		m.LastRefreshStamp.WithLabelValues(commons).SetToCurrentTime()
	}
	m.RefreshesTotal.WithLabelValues(commons, result).Inc()
	m.RefreshDuration.WithLabelValues(commons).Observe(elapsed.Seconds())
}

// Middleware records request counts and latencies by route pattern
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		route := c.Route().Path
		m.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// RegisterRoutes mounts GET /metrics
func (m *Metrics) RegisterRoutes(router fiber.Router) {
	router.Get("/metrics", m.Handler())
}
