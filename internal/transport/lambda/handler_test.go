package lambda

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// MockBatchProcessor is a mock implementation of pipeline.BatchProcessor
type MockBatchProcessor struct {
	mock.Mock
}

func (m *MockBatchProcessor) ProcessBatch(ctx context.Context, records []domain.StreamRecord) domain.BatchResult {
	args := m.Called(ctx, records)
	return args.Get(0).(domain.BatchResult)
}

const kinesisPayload = `{
	"Records": [
		{"eventID": "shardId-000:1", "kinesis": {"sequenceNumber": "1", "data": "eyJldmVudF9pZCI6ICIxIn0=", "partitionKey": "user_1"}},
		{"eventID": "shardId-000:2", "kinesis": {"sequenceNumber": "2", "data": "%%%not-base64", "partitionKey": "user_2"}}
	]
}`

func TestHandler_Handle(t *testing.T) {
	processor := new(MockBatchProcessor)
	processor.On("ProcessBatch", mock.Anything, []domain.StreamRecord{
		{SequenceNumber: "1", Data: "eyJldmVudF9pZCI6ICIxIn0="},
		{SequenceNumber: "2", Data: "%%%not-base64"},
	}).Return(domain.BatchResult{SuccessCount: 1, FailureCount: 1, FailedItemIDs: []string{"2"}})

	var event KinesisEvent
	require.NoError(t, json.Unmarshal([]byte(kinesisPayload), &event))

	h := NewHandler(processor, zap.NewNop())
	resp, err := h.Handle(context.Background(), event)

	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "2", resp.BatchItemFailures[0].ItemIdentifier)
	processor.AssertExpectations(t)
}

func TestHandler_ResponseShape(t *testing.T) {
	resp := Response(domain.BatchResult{FailedItemIDs: []string{}})

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"batchItemFailures":[]}`, string(raw))
}
