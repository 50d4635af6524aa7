package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cab_pooling", Name: "matches_total", Help: "Total rides matched into a pool"})
	PoolsCreatedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cab_pooling", Name: "pools_created_total", Help: "Total new pools allocated"})
	CancellationsTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cab_pooling", Name: "cancellations_total", Help: "Total rides cancelled"})
	LockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cab_pooling", Name: "lock_contention_total", Help: "Pool lock acquisition misses"})
	MatchLatency        = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "cab_pooling", Name: "match_latency_seconds", Help: "Match latency seconds"})
	PoolsActive         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "cab_pooling", Name: "pools_active", Help: "Number of active pools"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cab_pooling", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cab_pooling",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
