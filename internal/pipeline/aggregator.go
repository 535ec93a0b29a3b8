package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
	"github.com/amarkanday/experimentation-platform/internal/repository"
	"github.com/amarkanday/experimentation-platform/internal/retry"
)

// DefaultMaxConflictAttempts bounds aggregation retries on write conflicts
const DefaultMaxConflictAttempts = 3

// AggregateOutcome is the result of aggregating one event
type AggregateOutcome struct {
	Skipped      bool
	PartitionKey string
	SortKey      string
	EventCount   int64
	UniqueUsers  int64
	Attempts     int
}

// AggregateSummary tallies an aggregated batch
type AggregateSummary struct {
	Processed          int
	Skipped            int
	Failed             int
	ConflictsExhausted int
}

// Aggregator applies time-windowed atomic counter updates
type Aggregator struct {
	repo         repository.AggregationRepository
	maxAttempts  int
	storeTimeout time.Duration
	metrics      *metrics.Metrics
	log          *zap.Logger
}

// NewAggregator creates a new metric aggregator
func NewAggregator(
	repo repository.AggregationRepository,
	maxAttempts int,
	storeTimeout time.Duration,
	m *metrics.Metrics,
	log *zap.Logger,
) *Aggregator {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxConflictAttempts
	}

	return &Aggregator{
		repo:         repo,
		maxAttempts:  maxAttempts,
		storeTimeout: storeTimeout,
		metrics:      m,
		log:          log,
	}
}

// AggregateEvent increments the bucket for one event. Events carrying neither an experiment id nor a
// variant are skipped. Write conflicts are retried up to the configured bound; exhausting it returns an
// error wrapping retry.ErrConflictsExhausted.
func (a *Aggregator) AggregateEvent(ctx context.Context, event *domain.EnrichedEvent, window domain.TimeWindow) (AggregateOutcome, error) {
	if event.ExperimentID == "" && event.Variant == "" {
		return AggregateOutcome{Skipped: true}, nil
	}

	ts, err := event.Time()
	if err != nil {
		return AggregateOutcome{}, fmt.Errorf("failed to parse event timestamp: %w", err)
	}

	partitionKey, err := domain.AggregationKey(event.ExperimentID, event.Variant, ts, window)
	if err != nil {
		return AggregateOutcome{}, fmt.Errorf("failed to build aggregation key: %w", err)
	}
	sortKey := domain.AggregationSortKey(event.EventType)

	result := retry.OnConflict(ctx, a.maxAttempts, isConflict, func(ctx context.Context) (*domain.AggregationRecord, error) {
		callCtx := ctx
		if a.storeTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, a.storeTimeout)
			defer cancel()
		}
		return a.repo.Increment(callCtx, partitionKey, sortKey, event.UserID)
	})

	if result.Attempts > 1 {
		a.metrics.AddConflictRetries(result.Attempts - 1)
	}

	if !result.OK() {
		return AggregateOutcome{PartitionKey: partitionKey, SortKey: sortKey, Attempts: result.Attempts},
			fmt.Errorf("failed to increment aggregation %s/%s: %w", partitionKey, sortKey, result.Err)
	}

	return AggregateOutcome{
		PartitionKey: partitionKey,
		SortKey:      sortKey,
		EventCount:   result.Value.EventCount,
		UniqueUsers:  result.Value.UniqueUsers,
		Attempts:     result.Attempts,
	}, nil
}

// AggregateBatch aggregates every event, tolerating individual failures
func (a *Aggregator) AggregateBatch(ctx context.Context, events []domain.EnrichedEvent, window domain.TimeWindow) AggregateSummary {
	var summary AggregateSummary

	for i := range events {
		outcome, err := a.AggregateEvent(ctx, &events[i], window)
		switch {
		case err != nil:
			summary.Failed++
			if errors.Is(err, retry.ErrConflictsExhausted) {
				summary.ConflictsExhausted++
			}
			a.log.Error("Failed to aggregate event",
				zap.String("event_id", events[i].EventID),
				zap.Int("attempts", outcome.Attempts),
				zap.Error(err))
		case outcome.Skipped:
			summary.Skipped++
		default:
			summary.Processed++
		}
	}

	return summary
}

func isConflict(err error) bool {
	return errors.Is(err, repository.ErrConflict)
}
