// Package metrics holds the Prometheus collectors for the assignment API and the event pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AssignmentOutcome labels the result of one assignment request
type AssignmentOutcome string

const (
	AssignmentCreated  AssignmentOutcome = "created"
	AssignmentExisting AssignmentOutcome = "existing"
	AssignmentExcluded AssignmentOutcome = "excluded"
	AssignmentRaceLost AssignmentOutcome = "race_lost"
	AssignmentNotFound AssignmentOutcome = "not_found"
	AssignmentError    AssignmentOutcome = "error"
)

// Pipeline stages used as the stage label
const (
	StageDecode    = "decode"
	StageValidate  = "validate"
	StageEnrich    = "enrich"
	StageAggregate = "aggregate"
	StageArchive   = "archive"
	StageDLQ       = "dead_letter"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	assignments     *prometheus.CounterVec
	records         *prometheus.CounterVec
	batches         *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	conflictRetries prometheus.Counter
	archiveWrites   *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		assignments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assignment_requests_total",
				Help: "Total number of assignment requests by outcome",
			},
			[]string{"outcome"},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_records_total",
				Help: "Total number of records processed per pipeline stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_batches_total",
				Help: "Total number of stream batches by outcome (complete, partial, catastrophic)",
			},
			[]string{"outcome"},
		),
		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_batch_duration_seconds",
				Help:    "Duration of stream batch processing in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		conflictRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aggregation_conflict_retries_total",
				Help: "Total number of aggregation writes retried after an optimistic concurrency conflict",
			},
		),
		archiveWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_writes_total",
				Help: "Total number of archive batch writes per sink and outcome",
			},
			[]string{"sink", "outcome"},
		),
	}
}

// ObserveAssignment counts one assignment request
func (m *Metrics) ObserveAssignment(outcome AssignmentOutcome) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(string(outcome)).Inc()
}

// AddRecords counts n records leaving a stage with the given outcome
func (m *Metrics) AddRecords(stage, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(stage, outcome).Add(float64(n))
}

// ObserveBatch records the outcome and duration of one batch
func (m *Metrics) ObserveBatch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.batchDuration.Observe(elapsed.Seconds())
}

// AddConflictRetries counts aggregation retries caused by write conflicts
func (m *Metrics) AddConflictRetries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflictRetries.Add(float64(n))
}

// ObserveArchiveWrite counts one archive write attempt for a sink
func (m *Metrics) ObserveArchiveWrite(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.archiveWrites.WithLabelValues(sink, outcome).Inc()
}
