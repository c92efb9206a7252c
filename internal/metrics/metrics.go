package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the number of fetched events currently waiting on the
	// event queue across all subscriptions (pkg/queue.Queue.Len).
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logindexer_queue_depth",
			Help: "Number of pending events on the queue across all subscriptions",
		},
	)

	// PendingEvents is the number of decoded events awaiting dispatch for a
	// subscription's current tick.
	PendingEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logindexer_pending_events",
			Help: "Number of decoded events awaiting dispatch",
		},
		[]string{"subscription"},
	)

	// IndexedBlock is the highest block number a subscription has fully
	// indexed.
	IndexedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logindexer_indexed_block",
			Help: "Highest block number fully indexed",
		},
		[]string{"subscription"},
	)

	// TargetBlock is the block a subscription is currently indexing toward.
	TargetBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logindexer_target_block",
			Help: "Block number a subscription is indexing toward",
		},
		[]string{"subscription"},
	)

	// DispatchDuration times how long a handler takes to process one event.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logindexer_dispatch_duration_seconds",
			Help:    "Duration of a single event handler dispatch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"contract", "event"},
	)

	DispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logindexer_dispatch_errors_total",
			Help: "Total number of handler errors by contract and event",
		},
		[]string{"contract", "event"},
	)

	// Uptime, Goroutines, MemoryUsage are generic process metrics, updated
	// periodically by Server.updateSystemMetrics.
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logindexer_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logindexer_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logindexer_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

// QueueDepthSet records the current cross-subscription event queue depth.
func QueueDepthSet(depth int) {
	QueueDepth.Set(float64(depth))
}

// ProgressSet records indexing progress under the given "subscription" label
// value, as reported by pkg/indexer.Signals.OnProgress. That progress is
// engine-wide; cmd/indexer records it under the label "engine".
func ProgressSet(subscriptionID string, indexedBlock, targetBlock uint64, pendingEvents int) {
	IndexedBlock.WithLabelValues(subscriptionID).Set(float64(indexedBlock))
	TargetBlock.WithLabelValues(subscriptionID).Set(float64(targetBlock))
	PendingEvents.WithLabelValues(subscriptionID).Set(float64(pendingEvents))
}

// DispatchObserve records the outcome and duration of one handler dispatch.
func DispatchObserve(contractName, eventName string, duration time.Duration, err error) {
	DispatchDuration.WithLabelValues(contractName, eventName).Observe(duration.Seconds())
	if err != nil {
		DispatchErrors.WithLabelValues(contractName, eventName).Inc()
	}
}

// UpdateSystemMetrics updates runtime system metrics. Called periodically
// (see Server.updateSystemMetrics).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
