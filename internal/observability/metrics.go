package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	peerScoresComputed   *prometheus.CounterVec
	gradeWritesTotal     *prometheus.CounterVec
	injusticeCasesTotal  prometheus.Counter
	gradingRunLatency    prometheus.Histogram
	peerScoreCacheLookup *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of evaluation API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for evaluation API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by evaluation endpoints.",
		}, []string{"method", "route", "status"})

		peerScoresComputed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peer_scores_computed_total",
			Help: "Peer scores computed, by call path.",
		}, []string{"path"})

		gradeWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grade_writes_total",
			Help: "Grade upserts, by outcome.",
		}, []string{"status"})

		injusticeCasesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "injustice_cases_detected_total",
			Help: "Groups flagged with a negative mean peer score.",
		})

		gradingRunLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_run_seconds",
			Help:    "Duration of a full grading run for one evaluation.",
			Buckets: prometheus.DefBuckets,
		})

		peerScoreCacheLookup = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peer_score_cache_lookups_total",
			Help: "Peer score cache lookups, by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			peerScoresComputed,
			gradeWritesTotal,
			injusticeCasesTotal,
			gradingRunLatency,
			peerScoreCacheLookup,
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

// PeerScoresComputed counts computed peer scores labelled by "read" or "write".
func PeerScoresComputed() *prometheus.CounterVec {
	RegisterMetrics()
	return peerScoresComputed
}

// GradeWrites counts grade upserts labelled by "success" or "failure".
func GradeWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return gradeWritesTotal
}

// InjusticeCasesDetected counts flagged groups.
func InjusticeCasesDetected() prometheus.Counter {
	RegisterMetrics()
	return injusticeCasesTotal
}

// GradingRunLatency observes grading run durations.
func GradingRunLatency() prometheus.Histogram {
	RegisterMetrics()
	return gradingRunLatency
}

// PeerScoreCacheLookups counts cache lookups labelled by "hit", "miss" or "error".
func PeerScoreCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return peerScoreCacheLookup
}
