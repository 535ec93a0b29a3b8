package repository

import (
	"context"
	"errors"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

var (
	// ErrNotFound is returned when an item is absent or has expired
	ErrNotFound = errors.New("item not found")

	// ErrAlreadyExists is returned when a create-only-if-absent write finds an existing item
	ErrAlreadyExists = errors.New("item already exists")

	// ErrConflict is returned when an atomic update lost an optimistic concurrency race and may be retried
	ErrConflict = errors.New("write conflict")
)

// AssignmentRepository persists user assignments with create-only-if-absent semantics
type AssignmentRepository interface {
	// Get returns the live assignment for the user and experiment, or ErrNotFound
	Get(ctx context.Context, userID, experimentID string) (*domain.Assignment, error)

	// Create stores a new assignment. It returns ErrAlreadyExists when another writer got there first.
	Create(ctx context.Context, assignment *domain.Assignment) error
}

// ExperimentRepository provides read-only access to experiment configurations
type ExperimentRepository interface {
	// GetByID returns the experiment with the given identifier, or ErrNotFound
	GetByID(ctx context.Context, experimentID string) (*domain.ExperimentConfig, error)

	// GetByKey returns the experiment with the given human-readable key, or ErrNotFound
	GetByKey(ctx context.Context, experimentKey string) (*domain.ExperimentConfig, error)
}

// AggregationRepository applies atomic counter updates to aggregation buckets
type AggregationRepository interface {
	// Increment adds one to the event count of the bucket and, when userID is non-empty, adds it to the
	// bucket's distinct-user set, in a single atomic operation. It returns ErrConflict on an optimistic
	// concurrency failure.
	Increment(ctx context.Context, partitionKey, sortKey, userID string) (*domain.AggregationRecord, error)
}

// EventArchiveRepository stores enriched events for bulk analysis
type EventArchiveRepository interface {
	// InsertBatch inserts a batch of enriched events into the storage
	InsertBatch(ctx context.Context, events []*domain.EnrichedEvent) (int, error)

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error
}
