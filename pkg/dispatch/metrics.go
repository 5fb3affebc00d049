package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	responsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_dispatch_responses_total",
			Help: "Total number of responses written by the dispatcher, by status code",
		},
		[]string{"status"},
	)

	coalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_dispatch_coalesced_total",
			Help: "Total number of cache misses that shared a backend call with another request",
		},
	)
)
