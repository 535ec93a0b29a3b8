// Package badger implements the repositories on an embedded Badger database for local development
// and single-node deployments.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

const (
	assignmentPrefix    = "assignment/"
	experimentIDPrefix  = "experiment/id/"
	experimentKeyPrefix = "experiment/key/"
	aggregationPrefix   = "aggregation/"
)

// Store wraps the Badger database shared by the repositories
type Store struct {
	db  *badger.DB
	log *zap.Logger
}

// Open opens (or creates) the database in dir. An empty dir opens an in-memory database.
func Open(dir string, log *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(&zapLogger{log: log.Sugar()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	log.Info("Badger store opened", zap.String("dir", dir), zap.Bool("in_memory", dir == ""))

	return &Store{db: db, log: log}, nil
}

// Close closes the database
func (s *Store) Close() error {
	s.log.Info("Closing badger store")
	return s.db.Close()
}

// Ping verifies the database is open
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Assignments returns the assignment repository backed by this store
func (s *Store) Assignments() *AssignmentRepository {
	return &AssignmentRepository{store: s}
}

// Experiments returns the experiment repository backed by this store
func (s *Store) Experiments() *ExperimentRepository {
	return &ExperimentRepository{store: s}
}

// Aggregations returns the aggregation repository backed by this store
func (s *Store) Aggregations() *AggregationRepository {
	return &AggregationRepository{store: s}
}

// SeedExperiments loads a JSON array of experiment configurations from path. Every entry is
// validated before anything is written.
func (s *Store) SeedExperiments(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var experiments []domain.ExperimentConfig
	if err := json.Unmarshal(raw, &experiments); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i := range experiments {
		if err := experiments[i].Validate(); err != nil {
			return 0, err
		}
	}

	repo := s.Experiments()
	for i := range experiments {
		if err := repo.Put(&experiments[i]); err != nil {
			return i, err
		}
	}

	s.log.Info("Seeded experiments", zap.Int("count", len(experiments)))
	return len(experiments), nil
}

// zapLogger adapts zap to badger.Logger
type zapLogger struct {
	log *zap.SugaredLogger
}

func (l *zapLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l *zapLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l *zapLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
