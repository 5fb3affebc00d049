package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	permitsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_admission_permits_in_use",
		Help: "Number of connections currently holding an admission permit",
	})

	permitsCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_admission_capacity",
		Help: "Total number of admission permits",
	})

	waiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_admission_waiting",
		Help: "Number of connections waiting for an admission permit",
	})

	rejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_admission_rejections_total",
		Help: "Total number of connections rejected after the acquire timeout",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edge_admission_wait_seconds",
		Help:    "Time spent waiting for an admission permit",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 5, 30},
	})
)
