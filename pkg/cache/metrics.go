package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels: cache (store name).
var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairlens",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairlens",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses, including expired entries",
	}, []string{"cache"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairlens",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total LRU evictions at capacity",
	}, []string{"cache"})

	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fairlens",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Current number of stored entries",
	}, []string{"cache"})

	cacheFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairlens",
		Subsystem: "cache",
		Name:      "faults_total",
		Help:      "Cache faults recovered at the façade boundary and treated as misses",
	}, []string{"cache", "op"})
)
