package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

// Enricher joins events with the user's assignment and the experiment metadata
type Enricher struct {
	experiments  repository.ExperimentRepository
	assignments  repository.AssignmentRepository
	storeTimeout time.Duration
	log          *zap.Logger
}

// NewEnricher creates a new event enricher. storeTimeout bounds every lookup; zero disables the bound.
func NewEnricher(
	experiments repository.ExperimentRepository,
	assignments repository.AssignmentRepository,
	storeTimeout time.Duration,
	log *zap.Logger,
) *Enricher {
	return &Enricher{
		experiments:  experiments,
		assignments:  assignments,
		storeTimeout: storeTimeout,
		log:          log,
	}
}

type experimentLookup struct {
	config *domain.ExperimentConfig
	err    error
}

// EnrichBatch returns exactly one enriched event per input, in order. Lookup failures flag the event
// instead of dropping it.
func (e *Enricher) EnrichBatch(ctx context.Context, events []ValidEvent) []domain.EnrichedEvent {
	enriched := make([]domain.EnrichedEvent, len(events))
	cache := make(map[string]experimentLookup)

	for i := range events {
		enriched[i] = e.enrichEvent(ctx, events[i].Event, cache)
		if enriched[i].EnrichmentError {
			e.log.Warn("Event enrichment failed",
				zap.String("event_id", enriched[i].EventID),
				zap.String("experiment_id", enriched[i].ExperimentID),
				zap.String("reason", enriched[i].EnrichmentErrorReason))
		}
	}

	return enriched
}

func (e *Enricher) enrichEvent(ctx context.Context, event domain.Event, cache map[string]experimentLookup) domain.EnrichedEvent {
	out := domain.EnrichedEvent{Event: event}
	if event.ExperimentID == "" {
		return out
	}

	flag := func(reason string) domain.EnrichedEvent {
		return domain.EnrichedEvent{
			Event:                 event,
			EnrichmentError:       true,
			EnrichmentErrorReason: reason,
		}
	}

	lookup, ok := cache[event.ExperimentID]
	if !ok {
		lookup = e.lookupExperiment(ctx, event.ExperimentID)
		cache[event.ExperimentID] = lookup
	}
	if errors.Is(lookup.err, repository.ErrNotFound) {
		return flag("experiment not found")
	}
	if lookup.err != nil {
		return flag(fmt.Sprintf("experiment lookup failed: %v", lookup.err))
	}

	exp := lookup.config
	out.ExperimentKey = exp.Key
	out.ExperimentName = exp.Name
	out.ExperimentStatus = string(exp.Status)

	callCtx, cancel := e.withTimeout(ctx)
	assignment, err := e.assignments.Get(callCtx, event.UserID, event.ExperimentID)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		// excluded or never exposed
		return out
	}
	if err != nil {
		return flag(fmt.Sprintf("assignment lookup failed: %v", err))
	}

	eventTime, err := event.Time()
	if err != nil {
		return flag(fmt.Sprintf("invalid event timestamp: %v", err))
	}

	since := eventTime.Sub(assignment.CreatedAt).Seconds()
	out.AssignmentID = assignment.ID
	out.Variant = assignment.Variant
	out.TimeSinceAssignment = &since

	return out
}

func (e *Enricher) lookupExperiment(ctx context.Context, experimentID string) experimentLookup {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()

	cfg, err := e.experiments.GetByID(callCtx, experimentID)
	return experimentLookup{config: cfg, err: err}
}

func (e *Enricher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}
