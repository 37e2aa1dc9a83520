package feature

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "riskline"

// Engine metrics live next to the store so the hot path can bump them
// without crossing a package boundary.
var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "engine_events_ingested_total",
		Help:      "Total events applied to user state.",
	})

	// IngestDuration covers window insertion and feature computation.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "engine_ingest_duration_seconds",
		Help:      "Record operation duration in seconds.",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "engine_active_users",
		Help:      "Users currently tracked in memory.",
	})

	UsersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "engine_users_created_total",
		Help:      "Total user states created.",
	})

	UsersReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "engine_users_reclaimed_total",
		Help:      "Total user states reclaimed after TTL expiry.",
	})
)

// observeIngest bumps the event counter and starts the latency clock.
// Call the returned func when the record operation completes.
func observeIngest() func() {
	EventsIngested.Inc()
	start := time.Now()
	return func() {
		IngestDuration.Observe(time.Since(start).Seconds())
	}
}
