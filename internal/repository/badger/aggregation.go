package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

type aggregationValue struct {
	EventCount  int64               `json:"event_count"`
	UniqueUsers map[string]struct{} `json:"unique_users"`
}

// AggregationRepository keeps counters in serializable Badger transactions. Two transactions touching
// the same bucket cannot both commit; the loser gets repository.ErrConflict.
type AggregationRepository struct {
	store *Store
}

// Increment adds one event and, optionally, one user to the bucket
func (r *AggregationRepository) Increment(ctx context.Context, partitionKey, sortKey, userID string) (*domain.AggregationRecord, error) {
	key := []byte(aggregationPrefix + partitionKey + "/" + sortKey)

	var value aggregationValue
	err := r.store.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &value)
			}); err != nil {
				return err
			}
		}

		if value.UniqueUsers == nil {
			value.UniqueUsers = make(map[string]struct{})
		}
		value.EventCount++
		if userID != "" {
			value.UniqueUsers[userID] = struct{}{}
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return txn.Set(key, encoded)
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, fmt.Errorf("%w: %w", repository.ErrConflict, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update aggregation: %w", err)
	}

	return &domain.AggregationRecord{
		PartitionKey: partitionKey,
		SortKey:      sortKey,
		EventCount:   value.EventCount,
		UniqueUsers:  int64(len(value.UniqueUsers)),
	}, nil
}

// Get returns the current counters of a bucket
func (r *AggregationRepository) Get(ctx context.Context, partitionKey, sortKey string) (*domain.AggregationRecord, error) {
	key := []byte(aggregationPrefix + partitionKey + "/" + sortKey)

	var value aggregationValue
	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &value)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregation: %w", err)
	}

	return &domain.AggregationRecord{
		PartitionKey: partitionKey,
		SortKey:      sortKey,
		EventCount:   value.EventCount,
		UniqueUsers:  int64(len(value.UniqueUsers)),
	}, nil
}
