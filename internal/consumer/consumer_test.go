package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/domain"
)

func TestConsumer_Start_PipelineCoordination(t *testing.T) {
	mockConsumer := new(MockQueueConsumer)
	mockProcessor := new(MockBatchProcessor)

	mockConsumer.On("QueueURL").Return(testQueueURL)
	mockConsumer.On("ReceiveMessages", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{Messages: testMessages("msg-1")}, nil).Once()
	mockConsumer.On("ReceiveMessages", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{Messages: []types.Message{}}, nil).Maybe()
	mockConsumer.On("DeleteMessage", mock.Anything, deleteFor("receipt-msg-1")).
		Return(&sqs.DeleteMessageOutput{}, nil)

	mockProcessor.On("ProcessBatch", mock.Anything, mock.MatchedBy(func(records []domain.StreamRecord) bool {
		return len(records) == 1 && records[0].SequenceNumber == "msg-1"
	})).Return(domain.BatchResult{SuccessCount: 1, FailedItemIDs: []string{}})

	c := NewConsumer(config.Consumer{MaxMessages: 10, WaitTimeSeconds: 1}, mockConsumer, mockProcessor, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after context cancellation")
	}

	mockProcessor.AssertExpectations(t)
	mockConsumer.AssertCalled(t, "DeleteMessage", mock.Anything, deleteFor("receipt-msg-1"))
}
