package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

// AssignmentRepository stores assignments with a TTL equal to their retention window
type AssignmentRepository struct {
	store *Store
}

func assignmentKey(userID, experimentID string) []byte {
	return []byte(assignmentPrefix + userID + "/" + experimentID)
}

// Get returns the live assignment for the user and experiment
func (r *AssignmentRepository) Get(ctx context.Context, userID, experimentID string) (*domain.Assignment, error) {
	var assignment domain.Assignment

	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(assignmentKey(userID, experimentID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &assignment)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	if assignment.IsExpired(time.Now()) {
		return nil, repository.ErrNotFound
	}

	return &assignment, nil
}

// Create writes the assignment inside a transaction that first checks the key is absent. A concurrent
// writer committing the same key makes this transaction fail with ErrConflict, which is reported as
// ErrAlreadyExists.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *domain.Assignment) error {
	ttl := time.Until(assignment.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("assignment %s is already expired", assignment.ID)
	}

	val, err := json.Marshal(assignment)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	key := assignmentKey(assignment.UserID, assignment.ExperimentID)
	err = r.store.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return repository.ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.SetEntry(badger.NewEntry(key, val).WithTTL(ttl))
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrAlreadyExists), errors.Is(err, badger.ErrConflict):
		return repository.ErrAlreadyExists
	default:
		return fmt.Errorf("failed to put assignment: %w", err)
	}
}
