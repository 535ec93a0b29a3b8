package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// MockS3API is a mock implementation of S3API
type MockS3API struct {
	mock.Mock
}

func (m *MockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func testEvents() []domain.EnrichedEvent {
	return []domain.EnrichedEvent{
		{Event: domain.Event{EventID: "evt-1", UserID: "user_1", EventType: "view", Timestamp: "2025-01-15T10:30:00Z", ExperimentID: "789"}, Variant: "control"},
		{Event: domain.Event{EventID: "evt-2", UserID: "user_2", EventType: "click", Timestamp: "2025-01-15T10:31:00Z"}},
	}
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2025, 1, 5, 23, 59, 0, 42, time.FixedZone("CET", 3600))

	key := ObjectKey("events", at, "abc")

	assert.Equal(t, "events/year=2025/month=01/day=05/1736117940000000042-abc.jsonl.gz", key)
}

func TestS3Sink_Write(t *testing.T) {
	api := new(MockS3API)
	var captured *s3.PutObjectInput
	api.On("PutObject", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*s3.PutObjectInput) }).
		Return(&s3.PutObjectOutput{}, nil)

	sink := NewS3SinkWithAPI(api, config.S3{Bucket: "archive", Prefix: "events"}, zap.NewNop())
	sink.now = func() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) }
	sink.newID = func() string { return "id-1" }

	written, err := sink.Write(context.Background(), testEvents())

	require.NoError(t, err)
	assert.Equal(t, 2, written)
	require.NotNil(t, captured)
	assert.Equal(t, "archive", aws.ToString(captured.Bucket))
	assert.Equal(t, "events/year=2025/month=01/day=15/1736935200000000000-id-1.jsonl.gz", aws.ToString(captured.Key))
	assert.Equal(t, "gzip", aws.ToString(captured.ContentEncoding))

	gz, err := gzip.NewReader(captured.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	var lines []domain.EnrichedEvent
	for scanner.Scan() {
		var ev domain.EnrichedEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		lines = append(lines, ev)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "evt-1", lines[0].EventID)
	assert.Equal(t, "control", lines[0].Variant)
	assert.Equal(t, "evt-2", lines[1].EventID)
}

func TestS3Sink_WriteError(t *testing.T) {
	api := new(MockS3API)
	api.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	sink := NewS3SinkWithAPI(api, config.S3{Bucket: "archive", Prefix: "events"}, zap.NewNop())

	written, err := sink.Write(context.Background(), testEvents())

	assert.Error(t, err)
	assert.Equal(t, 0, written)
}

func TestS3Sink_EmptyBatchSkipsUpload(t *testing.T) {
	api := new(MockS3API)
	sink := NewS3SinkWithAPI(api, config.S3{Bucket: "archive"}, zap.NewNop())

	written, err := sink.Write(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, written)
	api.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}
