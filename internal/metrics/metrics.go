package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_detections_total",
			Help: "Total number of login risk assessments, by outcome",
		},
		[]string{"suspicious"},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailguard_detection_duration_seconds",
			Help:    "Duration of a full login risk assessment",
			Buckets: prometheus.DefBuckets,
		},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_anomalies_total",
			Help: "Total number of triggered anomaly checks",
		},
		[]string{"check"},
	)

	CheckFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_check_failures_total",
			Help: "Checks that failed internally and contributed no score",
		},
		[]string{"check"},
	)

	// Geolocation
	GeoCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailguard_geo_cache_hits_total",
			Help: "Geolocation lookups served from the cache",
		},
	)

	GeoCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailguard_geo_cache_misses_total",
			Help: "Geolocation lookups not served from the cache",
		},
	)

	GeoUpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_geo_upstream_requests_total",
			Help: "Upstream geolocation provider calls, by result",
		},
		[]string{"provider", "result"}, // "success", "failure", "rate_limited", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailguard_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Alerts and notifications
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_alerts_raised_total",
			Help: "Security alerts persisted, by severity",
		},
		[]string{"severity"},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_notification_deliveries_total",
			Help: "Per-recipient alert email deliveries, by result",
		},
		[]string{"result"}, // "sent", "failed", "dropped"
	)

	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailguard_notification_queue_depth",
			Help: "Notification jobs waiting for the delivery worker",
		},
	)

	// Background
	CleanupRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_cleanup_removed_total",
			Help: "Rows purged by the background cleanup, by table",
		},
		[]string{"table"},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailguard_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveDetection records one completed assessment
func ObserveDetection(suspicious bool, anomalyTypes []string, elapsed time.Duration) {
	label := "false"
	if suspicious {
		label = "true"
	}
	DetectionsTotal.WithLabelValues(label).Inc()
	DetectionDuration.Observe(elapsed.Seconds())
	for _, t := range anomalyTypes {
		AnomaliesTotal.WithLabelValues(t).Inc()
	}
}
