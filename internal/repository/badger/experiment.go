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

// ExperimentRepository stores experiment configurations under their id with a key -> id index
type ExperimentRepository struct {
	store *Store
}

// Put stores or replaces an experiment configuration
func (r *ExperimentRepository) Put(exp *domain.ExperimentConfig) error {
	val, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to marshal experiment: %w", err)
	}

	return r.store.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(experimentIDPrefix+exp.ID), val); err != nil {
			return err
		}
		return txn.Set([]byte(experimentKeyPrefix+exp.Key), []byte(exp.ID))
	})
}

// GetByID returns the experiment with the given identifier
func (r *ExperimentRepository) GetByID(ctx context.Context, experimentID string) (*domain.ExperimentConfig, error) {
	var exp *domain.ExperimentConfig
	err := r.store.db.View(func(txn *badger.Txn) error {
		var err error
		exp, err = getExperiment(txn, experimentID)
		return err
	})
	return exp, translate(err)
}

// GetByKey resolves the key index and returns the experiment
func (r *ExperimentRepository) GetByKey(ctx context.Context, experimentKey string) (*domain.ExperimentConfig, error) {
	var exp *domain.ExperimentConfig
	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(experimentKeyPrefix + experimentKey))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		exp, err = getExperiment(txn, string(id))
		return err
	})
	return exp, translate(err)
}

func getExperiment(txn *badger.Txn, id string) (*domain.ExperimentConfig, error) {
	item, err := txn.Get([]byte(experimentIDPrefix + id))
	if err != nil {
		return nil, err
	}

	var exp domain.ExperimentConfig
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &exp)
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiment: %w", err)
	}

	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return repository.ErrNotFound
	case errors.Is(err, domain.ErrInvalidExperiment):
		return err
	default:
		return fmt.Errorf("failed to get experiment: %w", err)
	}
}
