package queue

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// DeadLetterPublisher forwards permanently failed records to a dead-letter queue
type DeadLetterPublisher interface {
	// PublishDeadLetters sends the messages and returns how many were accepted by the queue
	PublishDeadLetters(ctx context.Context, letters []domain.DeadLetter) (int, error)
}

// QueueConsumer defines the interface for consuming messages from a queue
type QueueConsumer interface {
	ReceiveMessages(ctx context.Context, input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error)
	QueueURL() string
}
