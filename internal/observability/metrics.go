package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	apiRequestsTotal        *prometheus.CounterVec
	apiLatencySeconds       *prometheus.HistogramVec
	apiErrorsTotal          *prometheus.CounterVec
	mistakesRecordedTotal   *prometheus.CounterVec
	edgesSkippedTotal       *prometheus.CounterVec
	analyticsRunSeconds     *prometheus.HistogramVec
	analyticsCacheHitsTotal *prometheus.CounterVec
	eventsPublishedTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		mistakesRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kg_mistakes_recorded_total",
			Help: "Mistake vertices written by the recorder.",
		}, []string{"course"})

		edgesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kg_edges_skipped_total",
			Help: "Edges the recorder skipped because an endpoint was missing or no section matched.",
		}, []string{"edge", "reason"})

		analyticsRunSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kg_analytics_run_seconds",
			Help:    "Duration of full analytics runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"detector"})

		analyticsCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kg_analytics_cache_total",
			Help: "Analytics report cache lookups by result.",
		}, []string{"result"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kg_events_published_total",
			Help: "Events published to the message broker.",
		}, []string{"subject", "status"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			mistakesRecordedTotal,
			edgesSkippedTotal,
			analyticsRunSeconds,
			analyticsCacheHitsTotal,
			eventsPublishedTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// MistakesRecorded counts mistakes written per course.
func MistakesRecorded() *prometheus.CounterVec {
	RegisterMetrics()
	return mistakesRecordedTotal
}

// EdgesSkipped counts edges the recorder did not create.
func EdgesSkipped() *prometheus.CounterVec {
	RegisterMetrics()
	return edgesSkippedTotal
}

// AnalyticsRunDuration observes analytics run latency.
func AnalyticsRunDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return analyticsRunSeconds
}

// AnalyticsCache counts report cache hits and misses.
func AnalyticsCache() *prometheus.CounterVec {
	RegisterMetrics()
	return analyticsCacheHitsTotal
}

// EventsPublished counts broker publishes by subject and outcome.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}
