package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: lookups answered from the prediction store.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amr_prediction_cache_hits_total",
			Help: "Total number of prediction store hits.",
		},
	)

	// Counter: lookups that had to resolve a new prediction.
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amr_prediction_cache_misses_total",
			Help: "Total number of prediction store misses.",
		},
	)

	// Counter: newly resolved predictions by value and resolver.
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amr_predictions_total",
			Help: "Total number of predictions resolved, by prediction and source.",
		},
		[]string{"prediction", "source"},
	)

	ValidationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amr_validation_failures_total",
			Help: "Total number of rejected selections.",
		},
	)

	// Counter: remote model calls by outcome (ok | error).
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amr_model_requests_total",
			Help: "Total number of remote model requests, by outcome.",
		},
		[]string{"outcome"},
	)

	// Histogram: HTTP latency in seconds.
	RequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amr_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		PredictionsTotal,
		ValidationFailuresTotal,
		ModelRequestsTotal,
		RequestDurationSeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request. The route pattern is
// used as the path label so hashes in URLs cannot blow up cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		RequestDurationSeconds.
			WithLabelValues(routePattern(r), r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}
