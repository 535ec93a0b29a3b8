// Package app wires configuration into the repositories, archive and pipeline shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/archive"
	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
	"github.com/amarkanday/experimentation-platform/internal/pipeline"
	"github.com/amarkanday/experimentation-platform/internal/queue/sqs"
	"github.com/amarkanday/experimentation-platform/internal/repository"
	badgerstore "github.com/amarkanday/experimentation-platform/internal/repository/badger"
	"github.com/amarkanday/experimentation-platform/internal/repository/clickhouse"
	"github.com/amarkanday/experimentation-platform/internal/repository/dynamodb"
)

// Stores holds the repositories for the configured backend
type Stores struct {
	Experiments  repository.ExperimentRepository
	Assignments  repository.AssignmentRepository
	Aggregations repository.AggregationRepository

	ping  func(ctx context.Context) error
	close func() error
}

// Ping checks the backend. DynamoDB is stateless from the client's side and always reports healthy.
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backend
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores opens the repositories selected by STORE_BACKEND
func OpenStores(cfg *config.Config, awsCfg aws.Config, log *zap.Logger) (*Stores, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendBadger:
		store, err := badgerstore.Open(cfg.Store.BadgerDir, log)
		if err != nil {
			return nil, err
		}

		if cfg.Store.SeedFile != "" {
			n, err := store.SeedExperiments(cfg.Store.SeedFile)
			if err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("failed to seed experiments: %w", err)
			}
			log.Info("Seeded experiments", zap.Int("count", n), zap.String("file", cfg.Store.SeedFile))
		}

		return &Stores{
			Experiments:  store.Experiments(),
			Assignments:  store.Assignments(),
			Aggregations: store.Aggregations(),
			ping:         store.Ping,
			close:        store.Close,
		}, nil

	case config.StoreBackendDynamoDB:
		client := dynamodb.NewClient(awsCfg, cfg.AWS, log)
		return &Stores{
			Experiments:  dynamodb.NewExperimentRepository(client, cfg.DynamoDB.ExperimentsTable, cfg.DynamoDB.ExperimentKeyIndex, log),
			Assignments:  dynamodb.NewAssignmentRepository(client, cfg.DynamoDB.AssignmentsTable, log),
			Aggregations: dynamodb.NewAggregationRepository(client, cfg.DynamoDB.AggregationsTable, log),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// OpenArchive builds the archive writer over the configured sinks. The returned closer releases the
// ClickHouse connection when that sink is enabled.
func OpenArchive(ctx context.Context, cfg *config.Config, awsCfg aws.Config, m *metrics.Metrics, log *zap.Logger) (*archive.Writer, func(), error) {
	var sinks []archive.Sink
	closer := func() {}

	if cfg.HasArchiveSink(config.ArchiveSinkS3) {
		sinks = append(sinks, archive.NewS3Sink(awsCfg, cfg.AWS, cfg.S3, log))
	}

	if cfg.HasArchiveSink(config.ArchiveSinkClickHouse) {
		chClient, err := clickhouse.NewClient(ctx, cfg.ClickHouse, log)
		if err != nil {
			return nil, closer, err
		}

		repo := clickhouse.NewRepository(chClient, log)
		if err := repo.InitSchema(ctx); err != nil {
			_ = repo.Close()
			return nil, closer, fmt.Errorf("failed to initialize archive schema: %w", err)
		}

		sinks = append(sinks, archive.NewClickHouseSink(repo))
		closer = func() {
			if err := repo.Close(); err != nil {
				log.Error("Failed to close ClickHouse client", zap.Error(err))
			}
		}
	}

	writer := archive.NewWriter(sinks, archive.BreakerSettings{
		FailureThreshold: cfg.Archive.BreakerFailureThreshold,
		Timeout:          cfg.Archive.BreakerTimeout,
	}, m, log)

	return writer, closer, nil
}

// NewCoordinator builds the batch coordinator with every external dependency injected
func NewCoordinator(
	cfg *config.Config,
	stores *Stores,
	archiver pipeline.Archiver,
	sqsClient *sqs.Client,
	m *metrics.Metrics,
	log *zap.Logger,
) (*pipeline.Coordinator, error) {
	opts, err := pipeline.OptionsFromConfig(cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Dependencies{
		Experiments:  stores.Experiments,
		Assignments:  stores.Assignments,
		Aggregations: stores.Aggregations,
		Archive:      archiver,
		Metrics:      m,
		Logger:       log,
	}
	if sqsClient != nil {
		deps.DeadLetters = sqsClient
	}

	return pipeline.NewCoordinator(deps, opts), nil
}
