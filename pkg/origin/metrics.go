package origin

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	originRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_origin_requests_total",
		Help: "Total origin fetches by origin and outcome",
	}, []string{"origin", "outcome"})

	originRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edge_origin_request_duration_seconds",
		Help:    "Origin fetch duration in seconds",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"origin"})

	originRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_origin_retries_total",
		Help: "Total number of origin retry attempts by error class",
	}, []string{"error_class"})

	originRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_origin_retry_exhausted_total",
		Help: "Total number of origin fetches that exhausted their retries by error class",
	}, []string{"error_class"})
)

// outcome labels a finished fetch for edge_origin_requests_total.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case ClassOf(err) != "":
		return string(ClassOf(err))
	default:
		return "error"
	}
}

// observe records the result of one Fetch.
func observe(origin string, start time.Time, err error) {
	originRequestDuration.WithLabelValues(origin).Observe(time.Since(start).Seconds())
	originRequestsTotal.WithLabelValues(origin, outcome(err)).Inc()
}
