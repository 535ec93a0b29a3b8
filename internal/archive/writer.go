// Package archive persists enriched events to blob storage and the analytics database.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
)

// Sink is one archive destination
type Sink interface {
	Name() string
	Write(ctx context.Context, events []domain.EnrichedEvent) (int, error)
}

// BreakerSettings configure the per-sink circuit breaker
type BreakerSettings struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

type guardedSink struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker[int]
}

// Writer fans a batch out to every sink, each behind its own circuit breaker
type Writer struct {
	sinks   []guardedSink
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewWriter creates a new archive writer
func NewWriter(sinks []Sink, settings BreakerSettings, m *metrics.Metrics, log *zap.Logger) *Writer {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	guarded := make([]guardedSink, 0, len(sinks))
	for _, sink := range sinks {
		guarded = append(guarded, guardedSink{
			sink: sink,
			breaker: gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
				Name:        "archive-" + sink.Name(),
				MaxRequests: 1,
				Timeout:     settings.Timeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= threshold
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					log.Warn("Archive circuit breaker state changed",
						zap.String("breaker", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			}),
		})
	}

	return &Writer{
		sinks:   guarded,
		metrics: m,
		log:     log,
	}
}

// Archive writes the batch to every sink. The returned count is the number of events stored by every
// sink, so an event counts as archived only when no sink lost it. Sink errors are joined.
func (w *Writer) Archive(ctx context.Context, events []domain.EnrichedEvent) (int, error) {
	if len(events) == 0 || len(w.sinks) == 0 {
		return 0, nil
	}

	archived := len(events)
	var errs []error

	for _, g := range w.sinks {
		written, err := g.breaker.Execute(func() (int, error) {
			return g.sink.Write(ctx, events)
		})
		w.metrics.ObserveArchiveWrite(g.sink.Name(), err)

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				w.log.Warn("Archive sink unavailable, circuit open",
					zap.String("sink", g.sink.Name()),
					zap.Int("event_count", len(events)))
			} else {
				w.log.Error("Archive sink write failed",
					zap.String("sink", g.sink.Name()),
					zap.Int("event_count", len(events)),
					zap.Error(err))
			}
			errs = append(errs, fmt.Errorf("%s: %w", g.sink.Name(), err))
			written = 0
		}

		if written < archived {
			archived = written
		}
	}

	return archived, errors.Join(errs...)
}
