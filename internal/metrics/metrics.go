// Package metrics provides Prometheus metrics for the barback admin pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "barback"

var (
	// PreviewsTotal counts preview computations per collection and selection mode.
	PreviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "previews_total",
			Help:      "Total batch previews computed",
		},
		[]string{"collection", "mode", "status"}, // status: success/error
	)

	// PreviewLatency tracks preview computation latency.
	PreviewLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "preview_latency_seconds",
			Help:      "Preview computation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// JobsTotal counts batch jobs per mode and terminal status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total batch jobs reaching a terminal status",
		},
		[]string{"mode", "status"}, // status: done/failed
	)

	// ChunkCommitsTotal counts chunked store writes.
	ChunkCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_commits_total",
			Help:      "Total chunk batch commits against the document store",
		},
		[]string{"status"}, // success/error
	)

	// RowsWrittenTotal counts documents written by committed chunks.
	RowsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Total documents written by committed chunks",
		},
	)

	// RequestsThrottledTotal counts admin requests rejected by the rate limiter.
	RequestsThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_throttled_total",
			Help:      "Total admin requests rejected by the rate limiter",
		},
	)
)

// ObservePreview records one preview computation.
func ObservePreview(collection, mode string, latencySeconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PreviewsTotal.WithLabelValues(collection, mode, status).Inc()
	PreviewLatency.WithLabelValues(mode).Observe(latencySeconds)
}

// ObserveJob records a job reaching a terminal status.
func ObserveJob(mode, status string) {
	JobsTotal.WithLabelValues(mode, status).Inc()
}

// ObserveChunkCommit records one chunk batch commit.
func ObserveChunkCommit(rows int, err error) {
	if err != nil {
		ChunkCommitsTotal.WithLabelValues("error").Inc()
		return
	}
	ChunkCommitsTotal.WithLabelValues("success").Inc()
	RowsWrittenTotal.Add(float64(rows))
}

// ObserveThrottled records a rate-limited admin request.
func ObserveThrottled() {
	RequestsThrottledTotal.Inc()
}
