// Package pipeline runs stream batches through decode, validate, enrich, aggregate and archive.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
	"github.com/amarkanday/experimentation-platform/internal/queue"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

const (
	batchComplete     = "complete"
	batchPartial      = "partial"
	batchCatastrophic = "catastrophic"
)

// Dependencies are the external clients a Coordinator works against. They are created once at process
// start and shared by every batch.
type Dependencies struct {
	Experiments  repository.ExperimentRepository
	Assignments  repository.AssignmentRepository
	Aggregations repository.AggregationRepository

	// Archive and DeadLetters are optional
	Archive     Archiver
	DeadLetters queue.DeadLetterPublisher

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Options tune batch processing
type Options struct {
	DLQEnabled          bool
	DetectDuplicates    bool
	Window              domain.TimeWindow
	StoreTimeout        time.Duration
	BatchTimeout        time.Duration
	MaxConflictAttempts int
}

// OptionsFromConfig converts pipeline configuration into Options
func OptionsFromConfig(cfg config.Pipeline) (Options, error) {
	window, err := domain.ParseTimeWindow(cfg.Window)
	if err != nil {
		return Options{}, fmt.Errorf("failed to parse pipeline window: %w", err)
	}

	return Options{
		DLQEnabled:          cfg.DLQEnabled,
		DetectDuplicates:    cfg.DetectDuplicates,
		Window:              window,
		StoreTimeout:        cfg.StoreTimeout,
		BatchTimeout:        cfg.BatchTimeout,
		MaxConflictAttempts: cfg.MaxConflictAttempts,
	}, nil
}

// Coordinator drives one inbound batch through every stage and decides the partial-failure report
type Coordinator struct {
	decoder    Decoder
	validator  *Validator
	enricher   *Enricher
	aggregator *Aggregator
	archive    Archiver
	router     *DeadLetterRouter
	window     domain.TimeWindow
	timeout    time.Duration
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// NewCoordinator wires the pipeline stages
func NewCoordinator(deps Dependencies, opts Options) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Window == "" {
		opts.Window = domain.WindowHourly
	}

	return &Coordinator{
		decoder:    NewCodec(log),
		validator:  NewValidator(opts.DetectDuplicates, log),
		enricher:   NewEnricher(deps.Experiments, deps.Assignments, opts.StoreTimeout, log),
		aggregator: NewAggregator(deps.Aggregations, opts.MaxConflictAttempts, opts.StoreTimeout, deps.Metrics, log),
		archive:    deps.Archive,
		router:     NewDeadLetterRouter(deps.DeadLetters, opts.DLQEnabled, log),
		window:     opts.Window,
		timeout:    opts.BatchTimeout,
		metrics:    deps.Metrics,
		log:        log,
	}
}

// ProcessBatch runs the pipeline over records. Decode failures are reported per item; a decoder fault or
// a cancelled batch context reports every record as failed so the transport redelivers the whole batch.
func (c *Coordinator) ProcessBatch(ctx context.Context, records []domain.StreamRecord) domain.BatchResult {
	start := time.Now()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result := domain.BatchResult{FailedItemIDs: []string{}}
	result.Stages.Received = len(records)

	if len(records) == 0 {
		return c.finish(result, start, batchComplete)
	}

	payloads, decodeErrors, err := c.decode(records)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		c.log.Error("Catastrophic decode failure, failing batch",
			zap.Int("record_count", len(records)),
			zap.Error(err))
		return c.failAll(result, records, start, true)
	}

	result.Stages.Decoded = len(payloads)
	result.Stages.DecodeErrors = len(decodeErrors)
	for _, de := range decodeErrors {
		result.FailedItemIDs = append(result.FailedItemIDs, de.SequenceNumber)
	}
	c.metrics.AddRecords(metrics.StageDecode, "success", len(payloads))
	c.metrics.AddRecords(metrics.StageDecode, "failure", len(decodeErrors))
	c.deadLetter(ctx, &result, c.router.FromDecodeErrors(decodeErrors))

	if len(payloads) == 0 {
		c.log.Warn("No records survived decoding",
			zap.Int("record_count", len(records)))
		return c.failAll(result, records, start, false)
	}

	valid, validationErrors := c.validator.ValidateBatch(payloads)
	result.Stages.Validated = len(valid)
	result.Stages.ValidationErrors = len(validationErrors)
	result.FailureCount = len(decodeErrors) + len(validationErrors)
	c.metrics.AddRecords(metrics.StageValidate, "success", len(valid))
	c.metrics.AddRecords(metrics.StageValidate, "failure", len(validationErrors))
	c.deadLetter(ctx, &result, c.router.FromValidationErrors(validationErrors))

	if err := ctx.Err(); err != nil {
		c.log.Error("Batch cancelled after validation", zap.Error(err))
		return c.failAll(result, records, start, true)
	}

	enriched := c.enricher.EnrichBatch(ctx, valid)
	flagged := 0
	for i := range enriched {
		if enriched[i].EnrichmentError {
			flagged++
		}
	}
	result.Stages.Enriched = len(enriched)
	result.Stages.EnrichmentErrors = flagged
	c.metrics.AddRecords(metrics.StageEnrich, "success", len(enriched)-flagged)
	c.metrics.AddRecords(metrics.StageEnrich, "failure", flagged)

	if err := ctx.Err(); err != nil {
		c.log.Error("Batch cancelled after enrichment", zap.Error(err))
		return c.failAll(result, records, start, true)
	}

	summary := c.aggregator.AggregateBatch(ctx, enriched, c.window)
	result.Stages.Aggregated = summary.Processed
	result.Stages.AggregationSkips = summary.Skipped
	result.Stages.AggregationErrors = summary.Failed
	c.metrics.AddRecords(metrics.StageAggregate, "success", summary.Processed)
	c.metrics.AddRecords(metrics.StageAggregate, "skipped", summary.Skipped)
	c.metrics.AddRecords(metrics.StageAggregate, "failure", summary.Failed)

	c.archiveEvents(ctx, &result, enriched)

	if err := ctx.Err(); err != nil {
		c.log.Error("Batch cancelled before completion", zap.Error(err))
		return c.failAll(result, records, start, true)
	}

	result.SuccessCount = len(enriched) - flagged

	outcome := batchComplete
	if result.FailureCount > 0 {
		outcome = batchPartial
	}
	return c.finish(result, start, outcome)
}

func (c *Coordinator) decode(records []domain.StreamRecord) (payloads []DecodedPayload, decodeErrors []DecodeError, err error) {
	defer func() {
		if r := recover(); r != nil {
			payloads, decodeErrors = nil, nil
			err = fmt.Errorf("decoder panicked: %v", r)
		}
	}()

	payloads, decodeErrors = c.decoder.DecodeBatch(records)
	return payloads, decodeErrors, nil
}

func (c *Coordinator) deadLetter(ctx context.Context, result *domain.BatchResult, letters []domain.DeadLetter) {
	if !c.router.Enabled() || len(letters) == 0 {
		return
	}

	sent, err := c.router.Route(ctx, letters)
	result.Stages.DeadLettered += sent
	result.Stages.DeadLetterErrors += len(letters) - sent
	c.metrics.AddRecords(metrics.StageDLQ, "success", sent)
	c.metrics.AddRecords(metrics.StageDLQ, "failure", len(letters)-sent)
	if err != nil {
		c.log.Warn("Dead-lettering incomplete",
			zap.Int("sent", sent),
			zap.Int("total", len(letters)),
			zap.Error(err))
	}
}

func (c *Coordinator) archiveEvents(ctx context.Context, result *domain.BatchResult, events []domain.EnrichedEvent) {
	if c.archive == nil || len(events) == 0 {
		return
	}

	archived, err := c.archive.Archive(ctx, events)
	result.Stages.Archived = archived
	if archived < len(events) {
		result.Stages.ArchiveErrors = len(events) - archived
	}
	if err != nil {
		c.log.Error("Failed to archive events",
			zap.Int("event_count", len(events)),
			zap.Int("archived", archived),
			zap.Error(err))
	} else if result.Stages.ArchiveErrors > 0 {
		c.log.Warn("Some events were not archived",
			zap.Int("event_count", len(events)),
			zap.Int("archived", archived))
	}
	c.metrics.AddRecords(metrics.StageArchive, "success", archived)
	c.metrics.AddRecords(metrics.StageArchive, "failure", result.Stages.ArchiveErrors)
}

func (c *Coordinator) failAll(result domain.BatchResult, records []domain.StreamRecord, start time.Time, catastrophic bool) domain.BatchResult {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.SequenceNumber)
	}

	result.FailedItemIDs = ids
	result.FailureCount = len(records)
	result.SuccessCount = 0
	result.Catastrophic = catastrophic

	outcome := batchPartial
	if catastrophic {
		outcome = batchCatastrophic
	}
	return c.finish(result, start, outcome)
}

func (c *Coordinator) finish(result domain.BatchResult, start time.Time, outcome string) domain.BatchResult {
	result.Elapsed = time.Since(start)
	result.Stages.ElapsedMillis = result.Elapsed.Milliseconds()
	c.metrics.ObserveBatch(outcome, result.Elapsed)

	c.log.Info("Batch processed",
		zap.String("outcome", outcome),
		zap.Int("received", result.Stages.Received),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("failed_items", len(result.FailedItemIDs)),
		zap.Int("enrichment_errors", result.Stages.EnrichmentErrors),
		zap.Int("aggregation_errors", result.Stages.AggregationErrors),
		zap.Int("archive_errors", result.Stages.ArchiveErrors),
		zap.Int64("elapsed_ms", result.Stages.ElapsedMillis))

	return result
}
