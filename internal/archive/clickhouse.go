package archive

import (
	"context"

	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

// ClickHouseSink forwards batches to an event archive repository
type ClickHouseSink struct {
	repo repository.EventArchiveRepository
}

// NewClickHouseSink creates a sink over the given repository
func NewClickHouseSink(repo repository.EventArchiveRepository) *ClickHouseSink {
	return &ClickHouseSink{repo: repo}
}

// Name identifies the sink in logs and metrics
func (s *ClickHouseSink) Name() string {
	return config.ArchiveSinkClickHouse
}

// Write inserts the events as one batch
func (s *ClickHouseSink) Write(ctx context.Context, events []domain.EnrichedEvent) (int, error) {
	ptrs := make([]*domain.EnrichedEvent, len(events))
	for i := range events {
		ptrs[i] = &events[i]
	}
	return s.repo.InsertBatch(ctx, ptrs)
}
