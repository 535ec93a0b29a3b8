// Package lambda adapts Kinesis-triggered Lambda invocations to the event pipeline.
package lambda

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/pipeline"
)

// KinesisEvent mirrors events.KinesisEvent but keeps record data as the raw base64 string, so malformed
// data fails one record in the codec instead of the whole invocation at unmarshal time
type KinesisEvent struct {
	Records []struct {
		EventID string `json:"eventID"`
		Kinesis struct {
			SequenceNumber string `json:"sequenceNumber"`
			Data           string `json:"data"`
		} `json:"kinesis"`
	} `json:"Records"`
}

// Handler processes one Kinesis batch per invocation
type Handler struct {
	processor pipeline.BatchProcessor
	log       *zap.Logger
}

// NewHandler creates a new Kinesis batch handler
func NewHandler(processor pipeline.BatchProcessor, log *zap.Logger) *Handler {
	return &Handler{
		processor: processor,
		log:       log,
	}
}

// Handle runs the batch through the pipeline and reports partial batch failures
func (h *Handler) Handle(ctx context.Context, event KinesisEvent) (events.KinesisEventResponse, error) {
	records := make([]domain.StreamRecord, 0, len(event.Records))
	for _, r := range event.Records {
		records = append(records, domain.StreamRecord{
			SequenceNumber: r.Kinesis.SequenceNumber,
			Data:           r.Kinesis.Data,
		})
	}

	result := h.processor.ProcessBatch(ctx, records)
	if result.Catastrophic {
		h.log.Warn("Batch failed catastrophically, requesting full redelivery",
			zap.Int("record_count", len(records)))
	}

	return Response(result), nil
}

// Response converts a batch result into the Lambda partial batch failure response
func Response(result domain.BatchResult) events.KinesisEventResponse {
	failures := make([]events.KinesisBatchItemFailure, 0, len(result.FailedItemIDs))
	for _, id := range result.FailedItemIDs {
		failures = append(failures, events.KinesisBatchItemFailure{ItemIdentifier: id})
	}
	return events.KinesisEventResponse{BatchItemFailures: failures}
}
