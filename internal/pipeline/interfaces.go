package pipeline

import (
	"context"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// Decoder decodes transport records into raw payloads
type Decoder interface {
	DecodeBatch(records []domain.StreamRecord) ([]DecodedPayload, []DecodeError)
}

// Archiver persists enriched events for bulk analysis
type Archiver interface {
	// Archive writes the batch and returns how many events were stored
	Archive(ctx context.Context, events []domain.EnrichedEvent) (int, error)
}

// BatchProcessor runs one stream batch through the pipeline
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, records []domain.StreamRecord) domain.BatchResult
}
