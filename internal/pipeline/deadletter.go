package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/queue"
)

// KindValidation labels dead letters produced by schema validation
const KindValidation = "validation_error"

// DeadLetterRouter forwards permanently failed records to the dead-letter queue
type DeadLetterRouter struct {
	publisher queue.DeadLetterPublisher
	enabled   bool
	now       func() time.Time
	log       *zap.Logger
}

// NewDeadLetterRouter creates a new router. A disabled router or a nil publisher drops every letter.
func NewDeadLetterRouter(publisher queue.DeadLetterPublisher, enabled bool, log *zap.Logger) *DeadLetterRouter {
	return &DeadLetterRouter{
		publisher: publisher,
		enabled:   enabled,
		now:       time.Now,
		log:       log,
	}
}

// Enabled reports whether letters are forwarded
func (r *DeadLetterRouter) Enabled() bool {
	return r.enabled && r.publisher != nil
}

// Route publishes letters and returns how many were accepted
func (r *DeadLetterRouter) Route(ctx context.Context, letters []domain.DeadLetter) (int, error) {
	if !r.Enabled() || len(letters) == 0 {
		return 0, nil
	}

	sent, err := r.publisher.PublishDeadLetters(ctx, letters)
	if err != nil {
		r.log.Error("Failed to route dead letters",
			zap.Int("sent", sent),
			zap.Int("total", len(letters)),
			zap.Error(err))
		return sent, err
	}

	return sent, nil
}

// FromDecodeErrors builds dead letters for records that failed decoding
func (r *DeadLetterRouter) FromDecodeErrors(decodeErrors []DecodeError) []domain.DeadLetter {
	now := r.now().UTC()
	letters := make([]domain.DeadLetter, 0, len(decodeErrors))
	for _, de := range decodeErrors {
		letters = append(letters, domain.DeadLetter{
			SequenceNumber: de.SequenceNumber,
			Data:           de.Data,
			Error:          de.Error(),
			Timestamp:      now,
			Kind:           string(de.Kind),
		})
	}
	return letters
}

// FromValidationErrors builds dead letters for events rejected by the schema
func (r *DeadLetterRouter) FromValidationErrors(validationErrors []ValidationError) []domain.DeadLetter {
	now := r.now().UTC()
	letters := make([]domain.DeadLetter, 0, len(validationErrors))
	for _, ve := range validationErrors {
		letters = append(letters, domain.DeadLetter{
			SequenceNumber: ve.SequenceNumber,
			Data:           ve.Data,
			Error:          ve.Error(),
			Timestamp:      now,
			Kind:           KindValidation,
		})
	}
	return letters
}
