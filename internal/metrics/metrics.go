// Package metrics exposes the engine's Prometheus instrumentation: HTTP
// traffic, score distributions, pipeline counters, and runtime gauges.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskline"

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: name, Help: help,
	}, labels)
}

var (
	// HTTPRequestsTotal counts requests by method, route pattern, and
	// status class.
	HTTPRequestsTotal = counterVec("http_requests_total",
		"Total HTTP requests by method, path pattern, and status code.",
		"method", "path", "status")

	// HTTPRequestDuration samples request latency by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ScoresComputed samples emitted fraud scores by ingest source. Score
	// drift shows up here before a retrain would catch it.
	ScoresComputed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scores_computed",
		Help:      "Distribution of fraud scores by ingest source.",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99},
	}, []string{"source"})

	// HighRiskTotal counts scores at or above the alert threshold.
	HighRiskTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "high_risk_scores_total",
		Help:      "Total scores at or above the configured alert threshold.",
	})

	// AlertDeliveriesTotal counts webhook deliveries by result.
	AlertDeliveriesTotal = counterVec("alert_deliveries_total",
		"Total alert webhook deliveries by result.", "result")

	// IngestMessagesTotal counts consumed Kafka messages by result.
	IngestMessagesTotal = counterVec("ingest_messages_total",
		"Total Kafka messages consumed by result.", "result")

	// ScorePublishesTotal counts score records published to Kafka by result.
	ScorePublishesTotal = counterVec("score_publishes_total",
		"Total score records published to Kafka by result.", "result")

	// ActiveWebSocketClients gauges connected stream subscribers.
	ActiveWebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// GoroutineCount gauges the live goroutine count.
	GoroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "goroutines",
		Help:      "Current number of goroutines.",
	})
)

// StartRuntimeStatsCollector samples runtime gauges every interval until
// ctx ends. Run it in its own goroutine.
func StartRuntimeStatsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware records one latency sample and one counted request per call.
// Labels carry the route pattern, not the raw URL.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		method, route := c.Request.Method, c.FullPath()
		HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(method, route, statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler adapts the Prometheus exposition handler for the gin router.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveScore records one emitted score and bumps the high-risk counter
// when it clears the threshold.
func ObserveScore(source string, score, alertThreshold float64) {
	ScoresComputed.WithLabelValues(source).Observe(score)
	if score >= alertThreshold {
		HighRiskTotal.Inc()
	}
}

func statusBucket(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
