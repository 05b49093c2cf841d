package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pigeon_http_requests_total",
			Help: "Total number of HTTP requests processed by the daemon.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pigeon_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	storeWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pigeon_store_writes_total",
			Help: "Total number of store write operations.",
		},
		[]string{"op", "status"},
	)
	snapshotsDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pigeon_snapshots_delivered_total",
			Help: "Total number of live-query snapshots delivered.",
		},
	)
	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pigeon_active_subscriptions",
			Help: "Number of live subscriptions currently open.",
		},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pigeon_ws_active_connections",
			Help: "Number of active websocket watch connections.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		storeWritesTotal,
		snapshotsDeliveredTotal,
		activeSubscriptions,
		wsActiveConnections,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ObserveWrite records the outcome of a store write operation.
func ObserveWrite(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeWritesTotal.WithLabelValues(op, status).Inc()
}

func IncSnapshotsDelivered() {
	snapshotsDeliveredTotal.Inc()
}

func IncActiveSubscriptions() {
	activeSubscriptions.Inc()
}

func DecActiveSubscriptions() {
	activeSubscriptions.Dec()
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}
