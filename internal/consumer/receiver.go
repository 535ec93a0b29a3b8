package consumer

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/queue"
)

// receiveErrorBackoff is the pause after a failed ReceiveMessage call
const receiveErrorBackoff = time.Second

// ReceiverConfig configures the SQS receiver
type ReceiverConfig struct {
	MaxMessages     int32
	WaitTimeSeconds int32
}

// Receiver long-polls SQS and emits every non-empty receive as one batch
type Receiver struct {
	consumer queue.QueueConsumer
	config   ReceiverConfig
	log      *zap.Logger
}

// NewReceiver creates a new SQS receiver
func NewReceiver(consumer queue.QueueConsumer, config ReceiverConfig, log *zap.Logger) *Receiver {
	return &Receiver{
		consumer: consumer,
		config:   config,
		log:      log,
	}
}

// Start receives message batches until ctx is done, then closes out
func (r *Receiver) Start(ctx context.Context, out chan<- []types.Message) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Receiver shutting down")
			return
		default:
		}

		result, err := r.consumer.ReceiveMessages(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:              aws.String(r.consumer.QueueURL()),
			MaxNumberOfMessages:   r.config.MaxMessages,
			WaitTimeSeconds:       r.config.WaitTimeSeconds,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.log.Error("Error receiving messages from SQS", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(receiveErrorBackoff):
			}
			continue
		}

		if len(result.Messages) == 0 {
			continue
		}

		r.log.Debug("Received messages from SQS", zap.Int("message_count", len(result.Messages)))

		select {
		case <-ctx.Done():
			r.log.Info("Receiver shutting down with undelivered batch",
				zap.Int("message_count", len(result.Messages)))
			return
		case out <- result.Messages:
		}
	}
}
