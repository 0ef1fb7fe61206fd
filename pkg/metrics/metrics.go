// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportsTotal tracks import runs by operation type and status
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by operation type and status",
		},
		[]string{"operation_type", "status"},
	)

	// ImportDuration tracks import run duration in seconds
	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of import runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation_type"},
	)

	// ImportRecordsTotal tracks what happened to each incoming record
	ImportRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Incoming records by outcome (new, merged, skipped, invalid, failed)",
		},
		[]string{"outcome"},
	)

	// MatchesTotal tracks matches by strategy
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "matches_total",
			Help:      "Matches against existing leads by match type",
		},
		[]string{"match_type"},
	)

	// BatchFailuresTotal tracks persistence batches that failed
	BatchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "executor",
			Name:      "batch_failures_total",
			Help:      "Persistence batches that failed by phase (update, insert)",
		},
		[]string{"phase"},
	)

	// LedgerCreateFailuresTotal tracks import runs that continued without a ledger entry
	LedgerCreateFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ledger",
			Name:      "create_failures_total",
			Help:      "Import operations that could not be recorded in the ledger",
		},
	)

	// UndoTotal tracks undo attempts by result
	UndoTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "undo",
			Name:      "attempts_total",
			Help:      "Undo attempts by result (reverted, expired, already_reverted, nothing_to_delete)",
		},
		[]string{"result"},
	)

	// UndoDeletedRowsTotal tracks rows deleted by undo
	UndoDeletedRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "undo",
			Name:      "deleted_rows_total",
			Help:      "Leads deleted by reverting imports",
		},
	)

	// LeadsMergedTotal tracks leads folded into a master by user-initiated merges
	LeadsMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merging",
			Name:      "leads_merged_total",
			Help:      "Leads merged into a master lead",
		},
	)

	// KafkaPublishTotal tracks Kafka publish attempts
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_total",
			Help:      "Kafka publish attempts by event type and status",
		},
		[]string{"event_type", "status"},
	)

	// DLQMessagesTotal tracks import messages parked in the dead letter queue
	DLQMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "dlq_messages_total",
			Help:      "Import messages moved to the dead letter queue",
		},
	)
)

// RecordImport records the outcome of one import run.
func RecordImport(operationType, status string, durationSeconds float64, newCount, mergedCount, skippedCount, invalidCount, failedCount int) {
	ImportsTotal.WithLabelValues(operationType, status).Inc()
	ImportDuration.WithLabelValues(operationType).Observe(durationSeconds)
	ImportRecordsTotal.WithLabelValues("new").Add(float64(newCount))
	ImportRecordsTotal.WithLabelValues("merged").Add(float64(mergedCount))
	ImportRecordsTotal.WithLabelValues("skipped").Add(float64(skippedCount))
	ImportRecordsTotal.WithLabelValues("invalid").Add(float64(invalidCount))
	ImportRecordsTotal.WithLabelValues("failed").Add(float64(failedCount))
}

// RecordUndo records one undo attempt.
func RecordUndo(result string, deleted int) {
	UndoTotal.WithLabelValues(result).Inc()
	UndoDeletedRowsTotal.Add(float64(deleted))
}

// RecordKafkaPublish records a Kafka publish attempt.
func RecordKafkaPublish(eventType, status string) {
	KafkaPublishTotal.WithLabelValues(eventType, status).Inc()
}
