package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound API calls made by the client pipeline.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_api_requests_total",
			Help: "Total number of back-office API requests (by method, route and status).",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_api_request_duration_seconds",
			Help:    "Duration of back-office API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"method", "route"},
	)

	// Token refresh attempts by outcome.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_token_refresh_total",
			Help: "Token refresh attempts triggered by 401 responses.",
		},
		[]string{"result"}, // ok | error | shared | reused
	)

	LoginRedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_login_redirects_total",
			Help: "Times the client gave up on the session and redirected to login.",
		},
		[]string{"reason"}, // retried | no_refresh_token | refresh_failed
	)

	PaginationPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backoffice_pagination_pages_total",
			Help: "Page requests issued by batched collection fetches.",
		},
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_sync_runs_total",
			Help: "Collection sync runs by collection and result.",
		},
		[]string{"collection", "result"},
	)

	SyncRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backoffice_sync_records",
			Help: "Records in the last successful snapshot of a collection.",
		},
		[]string{"collection"},
	)

	LastSyncTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backoffice_last_sync_timestamp",
			Help: "Timestamp (unix seconds) of the last successful sync of a collection.",
		},
		[]string{"collection"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_events_published_total",
			Help: "Events published to the bus by subject and result.",
		},
		[]string{"bus", "subject", "result"},
	)

	EventPublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_event_publish_latency_seconds",
			Help:    "Time taken to publish an event.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bus"},
	)

	// Tracks cache hits and misses for agent credentials.
	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_secrets_cache_access_total",
			Help: "Number of cache hits/misses in the credentials cache.",
		},
		[]string{"result"}, // hit | miss
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_errors_total",
			Help: "Count of errors by component.",
		},
		[]string{"component", "reason"},
	)
)

// ObserveDuration records the time since start on a histogram or summary vector.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncAPIRequest(method, route, status string) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
}

func IncTokenRefresh(result string) {
	TokenRefreshTotal.WithLabelValues(result).Inc()
}

func IncLoginRedirect(reason string) {
	LoginRedirectsTotal.WithLabelValues(reason).Inc()
}

func IncPaginationPage() {
	PaginationPagesTotal.Inc()
}

func IncSyncRun(collection, result string) {
	SyncRunsTotal.WithLabelValues(collection, result).Inc()
}

func SetSyncResult(collection string, records int, t time.Time) {
	SyncRecords.WithLabelValues(collection).Set(float64(records))
	LastSyncTimestamp.WithLabelValues(collection).Set(float64(t.Unix()))
}

func IncEventPublished(bus, subject, result string) {
	EventsPublished.WithLabelValues(bus, subject, result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
