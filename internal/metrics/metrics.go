package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the attribution service.
type Metrics struct {
	// Ingest metrics
	PlaysIngested    prometheus.Counter
	IdentitiesPolled *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	TokenRefreshes   *prometheus.CounterVec

	// Attribution metrics
	AttributionPasses   *prometheus.CounterVec
	PassDuration        prometheus.Histogram
	AttributionsCreated prometheus.Counter
	PlaysProcessed      prometheus.Counter

	// Session metrics
	SessionsLinked *prometheus.CounterVec

	// Playlist cache metrics
	PlaylistCacheLookups *prometheus.CounterVec
	PlaylistFetches      *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// System metrics
	DBConnections *prometheus.GaugeVec
}

var (
	// DefaultMetrics is the global metrics instance
	DefaultMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		// Ingest metrics
		PlaysIngested: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_ingested_total",
				Help:      "New plays persisted from provider polls",
			},
		),
		IdentitiesPolled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identities_polled_total",
				Help:      "Identity poll outcomes",
			},
			[]string{"result"}, // ok, skipped, error
		),
		ProviderRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Streaming provider API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		ProviderLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_seconds",
				Help:      "Streaming provider API request latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		TokenRefreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Provider access token refresh attempts",
			},
			[]string{"result"},
		),

		// Attribution metrics
		AttributionPasses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribution_passes_total",
				Help:      "Attribution passes by trigger",
			},
			[]string{"trigger"}, // scheduled, link, manual
		),
		PassDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attribution_pass_seconds",
				Help:      "Attribution pass duration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		AttributionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attributions_created_total",
				Help:      "Attribution records created",
			},
		),
		PlaysProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_processed_total",
				Help:      "Plays examined during attribution passes",
			},
		),

		// Session metrics
		SessionsLinked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_linked_total",
				Help:      "Session link requests by outcome",
			},
			[]string{"result"}, // created, existing
		),

		// Playlist cache metrics
		PlaylistCacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "playlist_cache_lookups_total",
				Help:      "Playlist membership cache lookups",
			},
			[]string{"result"}, // hit, miss
		),
		PlaylistFetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "playlist_fetches_total",
				Help:      "Full playlist fetches from the provider",
			},
			[]string{"status"},
		),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"path"},
		),

		// System metrics
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPlaysIngested adds newly persisted plays.
func (m *Metrics) RecordPlaysIngested(count int) {
	if count > 0 {
		m.PlaysIngested.Add(float64(count))
	}
}

// RecordIdentityPolled records one identity poll outcome.
func (m *Metrics) RecordIdentityPolled(result string) {
	m.IdentitiesPolled.WithLabelValues(result).Inc()
}

// RecordProviderRequest records a provider API call.
func (m *Metrics) RecordProviderRequest(endpoint string, status int, latency time.Duration) {
	m.ProviderRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.ProviderLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordTokenRefresh records an access token refresh attempt.
func (m *Metrics) RecordTokenRefresh(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

// RecordAttributionPass records a completed attribution pass.
func (m *Metrics) RecordAttributionPass(trigger string, duration time.Duration, created, processed int) {
	m.AttributionPasses.WithLabelValues(trigger).Inc()
	m.PassDuration.Observe(duration.Seconds())
	if created > 0 {
		m.AttributionsCreated.Add(float64(created))
	}
	if processed > 0 {
		m.PlaysProcessed.Add(float64(processed))
	}
}

// RecordSessionLink records a session link request.
func (m *Metrics) RecordSessionLink(created bool) {
	result := "existing"
	if created {
		result = "created"
	}
	m.SessionsLinked.WithLabelValues(result).Inc()
}

// RecordPlaylistCacheLookup records a playlist cache lookup.
func (m *Metrics) RecordPlaylistCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PlaylistCacheLookups.WithLabelValues(result).Inc()
}

// RecordPlaylistFetch records a full playlist fetch from the provider.
func (m *Metrics) RecordPlaylistFetch(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PlaylistFetches.WithLabelValues(status).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(path string) {
	m.RateLimitHits.WithLabelValues(path).Inc()
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}
