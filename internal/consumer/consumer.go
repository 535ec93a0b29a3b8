package consumer

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/pipeline"
	"github.com/amarkanday/experimentation-platform/internal/queue"
)

// batchBufferSize is the number of received batches buffered ahead of processing
const batchBufferSize = 4

// Consumer connects the SQS receiver to the event pipeline
type Consumer struct {
	receiver  *Receiver
	processor *BatchProcessor
}

// NewConsumer creates a new consumer
func NewConsumer(cfg config.Consumer, queueConsumer queue.QueueConsumer, processor pipeline.BatchProcessor, log *zap.Logger) *Consumer {
	receiver := NewReceiver(queueConsumer, ReceiverConfig{
		MaxMessages:     cfg.MaxMessages,
		WaitTimeSeconds: cfg.WaitTimeSeconds,
	}, log)

	return &Consumer{
		receiver:  receiver,
		processor: NewBatchProcessor(queueConsumer, processor, log),
	}
}

// Start runs the receiver and the batch processor until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	batchChan := make(chan []types.Message, batchBufferSize)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.receiver.Start(ctx, batchChan)
	}()

	go func() {
		defer wg.Done()
		c.processor.Start(ctx, batchChan)
	}()

	wg.Wait()
	return nil
}
