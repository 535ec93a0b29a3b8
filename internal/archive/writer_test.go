package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
)

// MockSink is a mock implementation of Sink
type MockSink struct {
	mock.Mock
	name string
}

func (m *MockSink) Name() string {
	return m.name
}

func (m *MockSink) Write(ctx context.Context, events []domain.EnrichedEvent) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

// MockEventArchiveRepository is a mock implementation of repository.EventArchiveRepository
type MockEventArchiveRepository struct {
	mock.Mock
}

func (m *MockEventArchiveRepository) InsertBatch(ctx context.Context, events []*domain.EnrichedEvent) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

func (m *MockEventArchiveRepository) InitSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockEventArchiveRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockEventArchiveRepository) Close() error {
	return m.Called().Error(0)
}

func TestWriter_AllSinksSucceed(t *testing.T) {
	events := testEvents()
	s3Sink := &MockSink{name: "s3"}
	s3Sink.On("Write", mock.Anything, events).Return(2, nil)
	chSink := &MockSink{name: "clickhouse"}
	chSink.On("Write", mock.Anything, events).Return(2, nil)

	w := NewWriter([]Sink{s3Sink, chSink}, BreakerSettings{FailureThreshold: 3, Timeout: time.Minute},
		metrics.New(prometheus.NewRegistry()), zap.NewNop())

	archived, err := w.Archive(context.Background(), events)

	require.NoError(t, err)
	assert.Equal(t, 2, archived)
	s3Sink.AssertExpectations(t)
	chSink.AssertExpectations(t)
}

func TestWriter_OneSinkFails(t *testing.T) {
	events := testEvents()
	s3Sink := &MockSink{name: "s3"}
	s3Sink.On("Write", mock.Anything, events).Return(2, nil)
	chSink := &MockSink{name: "clickhouse"}
	chSink.On("Write", mock.Anything, events).Return(0, errors.New("connection refused"))

	w := NewWriter([]Sink{s3Sink, chSink}, BreakerSettings{FailureThreshold: 3, Timeout: time.Minute}, nil, zap.NewNop())

	archived, err := w.Archive(context.Background(), events)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "clickhouse")
	assert.Equal(t, 0, archived)
	s3Sink.AssertExpectations(t)
}

func TestWriter_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	events := testEvents()
	sink := &MockSink{name: "s3"}
	sink.On("Write", mock.Anything, events).Return(0, errors.New("throttled"))

	w := NewWriter([]Sink{sink}, BreakerSettings{FailureThreshold: 2, Timeout: time.Hour}, nil, zap.NewNop())

	for i := 0; i < 4; i++ {
		_, err := w.Archive(context.Background(), events)
		require.Error(t, err)
	}

	sink.AssertNumberOfCalls(t, "Write", 2)
}

func TestWriter_NoSinks(t *testing.T) {
	w := NewWriter(nil, BreakerSettings{}, nil, zap.NewNop())

	archived, err := w.Archive(context.Background(), testEvents())

	require.NoError(t, err)
	assert.Equal(t, 0, archived)
}

func TestClickHouseSink_Write(t *testing.T) {
	events := testEvents()
	repo := new(MockEventArchiveRepository)
	repo.On("InsertBatch", mock.Anything, mock.MatchedBy(func(batch []*domain.EnrichedEvent) bool {
		return len(batch) == 2 && batch[0].EventID == "evt-1" && batch[1].EventID == "evt-2"
	})).Return(2, nil)

	sink := NewClickHouseSink(repo)
	written, err := sink.Write(context.Background(), events)

	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, "clickhouse", sink.Name())
	repo.AssertExpectations(t)
}
