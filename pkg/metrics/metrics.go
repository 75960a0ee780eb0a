// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal tracks document status transitions by kind and result
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total number of document status transitions",
		},
		[]string{"tenant_id", "document", "target", "status"},
	)

	// TransitionDuration tracks transition handling duration in seconds
	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "lifecycle",
			Name:      "transition_duration_seconds",
			Help:      "Duration of document status transitions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"document", "target"},
	)

	// AmendmentsMergedTotal tracks amendment merges by result
	AmendmentsMergedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "amendments",
			Name:      "merged_total",
			Help:      "Total number of amendment merge attempts",
		},
		[]string{"tenant_id", "status"},
	)

	// SweeperJobsTotal tracks sweeper job runs by job and result
	SweeperJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sweeper",
			Name:      "jobs_total",
			Help:      "Total number of sweeper job runs",
		},
		[]string{"job", "status"},
	)

	// SweeperDocumentsSwept tracks documents moved by the sweeper
	SweeperDocumentsSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sweeper",
			Name:      "documents_swept_total",
			Help:      "Total number of documents transitioned by the sweeper",
		},
		[]string{"job", "target"},
	)

	// SweeperJobDuration tracks sweeper job duration in seconds
	SweeperJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sweeper",
			Name:      "job_duration_seconds",
			Help:      "Duration of sweeper job runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"job"},
	)

	// SyncAttemptsTotal tracks downstream sync attempts by result
	SyncAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "attempts_total",
			Help:      "Total number of downstream sync attempts",
		},
		[]string{"tenant_id", "status"},
	)

	// SyncInFlight tracks sync deliveries currently being processed
	SyncInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "in_flight",
			Help:      "Number of sync deliveries currently being processed",
		},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// HactRefreshesTotal tracks partner aggregate refreshes by trigger
	HactRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "hact",
			Name:      "refreshes_total",
			Help:      "Total number of partner HACT aggregate refreshes",
		},
		[]string{"tenant_id", "trigger", "status"},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordTransition records a document status transition
func RecordTransition(tenantID, document, target, status string, durationSeconds float64) {
	TransitionsTotal.WithLabelValues(tenantID, document, target, status).Inc()
	TransitionDuration.WithLabelValues(document, target).Observe(durationSeconds)
}

// RecordSweeperJob records a sweeper job run
func RecordSweeperJob(job, status string, durationSeconds float64) {
	SweeperJobsTotal.WithLabelValues(job, status).Inc()
	SweeperJobDuration.WithLabelValues(job).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordSyncAttempt records a downstream sync attempt
func RecordSyncAttempt(tenantID, status string) {
	SyncAttemptsTotal.WithLabelValues(tenantID, status).Inc()
}

// RecordHactRefresh records a partner aggregate refresh
func RecordHactRefresh(tenantID, trigger, status string) {
	HactRefreshesTotal.WithLabelValues(tenantID, trigger, status).Inc()
}
