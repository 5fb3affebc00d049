package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups answered from cache.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses tracks lookups that found no entry.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheEvictions tracks entries removed by the LRU policy.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_evictions_total",
			Help: "Total number of response cache LRU evictions",
		},
	)

	// CacheEntries tracks live entries.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_cache_entries",
			Help: "Current number of entries in the response cache",
		},
	)
)
