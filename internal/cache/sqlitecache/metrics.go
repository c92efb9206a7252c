package sqlitecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLogQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logindexer_cache_log_queries_total",
			Help: "Total number of GetLogs cache lookups by outcome (hit, partial, miss)",
		},
		[]string{"outcome"},
	)

	cacheCallQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logindexer_cache_call_queries_total",
			Help: "Total number of GetCallResult cache lookups by outcome (hit, miss)",
		},
		[]string{"outcome"},
	)
)

func recordLogQueryOutcome(outcome string) {
	cacheLogQueries.WithLabelValues(outcome).Inc()
}

func recordCallQueryOutcome(outcome string) {
	cacheCallQueries.WithLabelValues(outcome).Inc()
}
