package consumer

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/pipeline"
	"github.com/amarkanday/experimentation-platform/internal/queue"
)

// ackTimeout bounds acknowledgments issued after the consumer context is done
const ackTimeout = 5 * time.Second

// BatchProcessor runs received batches through the pipeline and acknowledges the records it did not
// report as failed. Failed records are left on the queue for redelivery after the visibility timeout.
type BatchProcessor struct {
	consumer  queue.QueueConsumer
	processor pipeline.BatchProcessor
	log       *zap.Logger
}

// NewBatchProcessor creates a new batch processor stage
func NewBatchProcessor(consumer queue.QueueConsumer, processor pipeline.BatchProcessor, log *zap.Logger) *BatchProcessor {
	return &BatchProcessor{
		consumer:  consumer,
		processor: processor,
		log:       log,
	}
}

// Start processes batches until the input channel is closed
func (p *BatchProcessor) Start(ctx context.Context, in <-chan []types.Message) {
	for messages := range in {
		p.processBatch(ctx, messages)
	}
	p.log.Info("Batch processor input channel closed")
}

func (p *BatchProcessor) processBatch(ctx context.Context, messages []types.Message) domain.BatchResult {
	envelopes := make([]*Envelope, 0, len(messages))
	records := make([]domain.StreamRecord, 0, len(messages))
	for _, msg := range messages {
		env := p.envelope(msg)
		envelopes = append(envelopes, env)
		records = append(records, env.Record)
	}

	result := p.processor.ProcessBatch(ctx, records)

	failed := make(map[string]struct{}, len(result.FailedItemIDs))
	for _, id := range result.FailedItemIDs {
		failed[id] = struct{}{}
	}

	var toAck, toNack []*Envelope
	for _, env := range envelopes {
		if _, ok := failed[env.Record.SequenceNumber]; ok {
			toNack = append(toNack, env)
			continue
		}
		toAck = append(toAck, env)
	}

	// acknowledgments must go out even while shutting down
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()

	p.ackAll(ackCtx, toAck)
	p.nackAll(ackCtx, toNack)

	p.log.Info("Processed SQS batch",
		zap.Int("message_count", len(messages)),
		zap.Int("acked", len(toAck)),
		zap.Int("left_for_redelivery", len(toNack)),
		zap.Bool("catastrophic", result.Catastrophic))

	return result
}

func (p *BatchProcessor) envelope(msg types.Message) *Envelope {
	ack := func(ctx context.Context) error {
		return p.deleteMessage(ctx, msg)
	}

	nack := func(ctx context.Context) error {
		// the message becomes visible again once its visibility timeout expires
		return nil
	}

	return NewEnvelope(RecordFromMessage(msg), ack, nack)
}

// ackAll acknowledges all envelopes (deletes from SQS)
func (p *BatchProcessor) ackAll(ctx context.Context, envelopes []*Envelope) {
	for _, env := range envelopes {
		if err := env.Ack(ctx); err != nil {
			p.log.Error("Failed to ack envelope",
				zap.String("message_id", env.Record.SequenceNumber),
				zap.Error(err))
		}
	}
}

// nackAll negatively acknowledges all envelopes (leaves in SQS for retry)
func (p *BatchProcessor) nackAll(ctx context.Context, envelopes []*Envelope) {
	for _, env := range envelopes {
		if err := env.Nack(ctx); err != nil {
			p.log.Error("Failed to nack envelope",
				zap.String("message_id", env.Record.SequenceNumber),
				zap.Error(err))
		}
	}
}

func (p *BatchProcessor) deleteMessage(ctx context.Context, msg types.Message) error {
	_, err := p.consumer.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.consumer.QueueURL()),
		ReceiptHandle: msg.ReceiptHandle,
	})
	return err
}
