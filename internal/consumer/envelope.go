package consumer

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// Envelope wraps a stream record with acknowledgment callbacks
type Envelope struct {
	Record domain.StreamRecord
	ack    func(context.Context) error
	nack   func(context.Context) error
}

// NewEnvelope creates a new message envelope
func NewEnvelope(record domain.StreamRecord, ack, nack func(context.Context) error) *Envelope {
	return &Envelope{
		Record: record,
		ack:    ack,
		nack:   nack,
	}
}

// RecordFromMessage maps an SQS message onto a stream record: the message id is the sequence number
// and the body carries the base64 event payload
func RecordFromMessage(msg types.Message) domain.StreamRecord {
	return domain.StreamRecord{
		SequenceNumber: aws.ToString(msg.MessageId),
		Data:           aws.ToString(msg.Body),
	}
}

// Ack acknowledges successful processing
func (e *Envelope) Ack(ctx context.Context) error {
	if e.ack != nil {
		return e.ack(ctx)
	}
	return nil
}

// Nack negatively acknowledges processing
func (e *Envelope) Nack(ctx context.Context) error {
	if e.nack != nil {
		return e.nack(ctx)
	}
	return nil
}
