// Package metrics exposes Prometheus collectors for HTTP traffic and SQL
// statements. A Metrics value owns its registry so several can coexist in
// one process.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Skryldev/storefront/db"
)

const namespace = "storefront"

type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// New registers every collector, plus the process and Go runtime
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}, []string{"method", "route"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "queries_total",
			Help:      "Total number of SQL statements executed.",
		}, []string{"operation", "table", "success"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of SQL statements.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}, []string{"operation", "table"}),
	}
	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.queries,
		m.queryDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordQuery implements db.MetricsCollector.
func (m *Metrics) RecordQuery(query string, d time.Duration, success bool) {
	op, table := statementLabels(query)
	m.queries.WithLabelValues(op, table, strconv.FormatBool(success)).Inc()
	m.queryDuration.WithLabelValues(op, table).Observe(d.Seconds())
}

var _ db.MetricsCollector = (*Metrics)(nil)

// Middleware records one observation per request, labelled with the
// matched route template rather than the raw path.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// statementLabels reduces a statement to its verb and target table so the
// label set stays bounded.
func statementLabels(query string) (op, table string) {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return "unknown", "unknown"
	}
	op = fields[0]
	table = "none"

	var after string
	switch op {
	case "select", "delete":
		after = "from"
	case "insert":
		after = "into"
	case "update":
		if len(fields) > 1 {
			table = fields[1]
		}
		return op, table
	default:
		return op, table
	}
	for i, f := range fields[:len(fields)-1] {
		if f == after {
			table = strings.Trim(fields[i+1], "();,")
			break
		}
	}
	return op, table
}
