// Package metrics holds the prometheus collectors for the answer engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AnswerWrites counts accepted writes by operation (upsert, delete)
	AnswerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenflow_answer_writes_total",
		Help: "Accepted answer writes by operation",
	}, []string{"operation"})

	// Rejections counts write requests rejected before any mutation, by error code
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenflow_write_rejections_total",
		Help: "Write requests rejected by error code",
	}, []string{"code"})

	// Replays counts write requests served from the replay cache
	Replays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screenflow_replays_total",
		Help: "Write requests answered from the replay cache",
	})

	// StoreFallbacks counts operations that degraded to the volatile store
	StoreFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenflow_store_fallbacks_total",
		Help: "Answer store operations served by the volatile fallback",
	}, []string{"operation"})

	// AssemblyDuration tracks screen assembly latency
	AssemblyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "screenflow_screen_assembly_duration_seconds",
		Help:    "Screen assembly duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
