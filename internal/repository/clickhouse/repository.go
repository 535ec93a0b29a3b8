package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// Repository stores enriched experiment events in ClickHouse
type Repository struct {
	client *Client
	now    func() time.Time
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse event archive repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		now:    time.Now,
		log:    log,
	}
}

// InitSchema creates the experiment_events table. ReplacingMergeTree collapses redelivered events that
// share an event_id.
func (r *Repository) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS experiment_events (
		event_id String,
		user_id String,
		event_type LowCardinality(String),
		event_time DateTime64(3, 'UTC'),
		experiment_id String,
		experiment_key String,
		variant LowCardinality(String),
		assignment_id String,
		time_since_assignment Nullable(Float64),
		enrichment_error Bool,
		enrichment_error_reason String,
		properties String,
		archived_at DateTime64(3, 'UTC'),
		version UInt64
	) ENGINE = ReplacingMergeTree(version)
	PARTITION BY toYYYYMM(event_time)
	ORDER BY (experiment_id, variant, event_time, event_id)
	SETTINGS index_granularity = 8192
	`

	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create experiment_events table: %w", err)
	}

	r.log.Info("ClickHouse schema initialized")
	return nil
}

// InsertBatch appends the events to one ClickHouse batch and sends it
func (r *Repository) InsertBatch(ctx context.Context, events []*domain.EnrichedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([][]interface{}, 0, len(events))
	archivedAt := r.now().UTC()
	for _, event := range events {
		row, err := eventRow(event, archivedAt)
		if err != nil {
			r.log.Warn("Skipping event that cannot be archived",
				zap.String("event_id", event.EventID),
				zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return 0, fmt.Errorf("no events could be appended to batch")
	}

	batch, err := r.client.Conn().PrepareBatch(ctx, "INSERT INTO experiment_events")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return 0, fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return len(rows), nil
}

// eventRow flattens an event into the experiment_events column order
func eventRow(event *domain.EnrichedEvent, archivedAt time.Time) ([]interface{}, error) {
	eventTime, err := event.Time()
	if err != nil {
		return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
	}

	properties := "{}"
	if len(event.Properties) > 0 {
		raw, err := json.Marshal(event.Properties)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties: %w", err)
		}
		properties = string(raw)
	}

	return []interface{}{
		event.EventID,
		event.UserID,
		event.EventType,
		eventTime.UTC(),
		event.ExperimentID,
		event.ExperimentKey,
		event.Variant,
		event.AssignmentID,
		event.TimeSinceAssignment,
		event.EnrichmentError,
		event.EnrichmentErrorReason,
		properties,
		archivedAt,
		uint64(archivedAt.UnixNano()),
	}, nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}
