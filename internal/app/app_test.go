package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
)

func badgerConfig(t *testing.T, seed string) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Service: config.Service{Environment: "test"},
		Store: config.Store{
			Backend:   config.StoreBackendBadger,
			BadgerDir: filepath.Join(t.TempDir(), "badger"),
		},
		Pipeline: config.Pipeline{
			Window:              "hourly",
			MaxConflictAttempts: 3,
		},
	}

	if seed != "" {
		path := filepath.Join(t.TempDir(), "experiments.json")
		require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
		cfg.Store.SeedFile = path
	}

	return cfg
}

func TestOpenStores_BadgerWithSeed(t *testing.T) {
	seed := `[{"id":"exp-1","key":"checkout_button","name":"Checkout","status":"active","traffic_allocation":1,
		"variants":[{"key":"control","allocation":0.5},{"key":"treatment","allocation":0.5}]}]`
	cfg := badgerConfig(t, seed)

	stores, err := OpenStores(cfg, aws.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	assert.NoError(t, stores.Ping(context.Background()))

	exp, err := stores.Experiments.GetByKey(context.Background(), "checkout_button")
	require.NoError(t, err)
	assert.Equal(t, "exp-1", exp.ID)
	assert.Equal(t, domain.ExperimentStatusActive, exp.Status)
}

func TestOpenStores_BadSeedFails(t *testing.T) {
	cfg := badgerConfig(t, `not json`)

	_, err := OpenStores(cfg, aws.Config{}, zap.NewNop())

	assert.ErrorContains(t, err, "failed to seed experiments")
}

func TestOpenStores_UnsupportedBackend(t *testing.T) {
	cfg := &config.Config{Store: config.Store{Backend: "postgres"}}

	_, err := OpenStores(cfg, aws.Config{}, zap.NewNop())

	assert.EqualError(t, err, "unsupported store backend: postgres")
}

func TestOpenArchive_NoSinks(t *testing.T) {
	cfg := &config.Config{}

	writer, closer, err := OpenArchive(context.Background(), cfg, aws.Config{}, metrics.New(nil), zap.NewNop())

	require.NoError(t, err)
	defer closer()
	n, err := writer.Archive(context.Background(), []domain.EnrichedEvent{{}})
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewCoordinator_RejectsUnknownWindow(t *testing.T) {
	cfg := badgerConfig(t, "")
	cfg.Pipeline.Window = "weekly"

	stores, err := OpenStores(cfg, aws.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	_, err = NewCoordinator(cfg, stores, nil, nil, nil, zap.NewNop())

	assert.Error(t, err)
}

func TestNewCoordinator_ProcessesEmptyBatch(t *testing.T) {
	cfg := badgerConfig(t, "")

	stores, err := OpenStores(cfg, aws.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	coordinator, err := NewCoordinator(cfg, stores, nil, nil, nil, zap.NewNop())
	require.NoError(t, err)

	result := coordinator.ProcessBatch(context.Background(), nil)

	assert.Empty(t, result.FailedItemIDs)
	assert.False(t, result.Catastrophic)
}
