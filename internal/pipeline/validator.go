package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// unknownEventID stands in for a missing or non-string event_id in validation errors
const unknownEventID = "unknown"

// ValidEvent is an event that passed schema validation, tagged with its transport sequence number
type ValidEvent struct {
	SequenceNumber string
	Event          domain.Event
}

// ValidationError describes a payload rejected by the event schema
type ValidationError struct {
	EventID        string
	SequenceNumber string
	Message        string
	Payload        map[string]interface{}
	Data           string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("event %s: %s", e.EventID, e.Message)
}

// eventSchema carries the validation rules for the required event fields
type eventSchema struct {
	EventID   string `validate:"required,max=256"`
	UserID    string `validate:"required,max=256"`
	EventType string `validate:"required,max=256"`
	Timestamp string `validate:"required,rfc3339"`
}

const rfc3339Tag = "rfc3339"

// newStructValidator builds the validator with the timestamp rule registered under tag
func newStructValidator(tag string) (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register %q validation: %w", tag, err)
	}
	return v, nil
}

// Validator checks decoded payloads against the event contract
type Validator struct {
	validate         *validator.Validate
	detectDuplicates bool
	log              *zap.Logger
}

// NewValidator creates a new event schema validator
func NewValidator(detectDuplicates bool, log *zap.Logger) *Validator {
	v, err := newStructValidator(rfc3339Tag)
	if err != nil {
		panic(fmt.Sprintf("failed to register event validators: %v", err))
	}

	return &Validator{
		validate:         v,
		detectDuplicates: detectDuplicates,
		log:              log,
	}
}

// ValidateBatch splits payloads into valid events and validation errors. When duplicate detection is
// enabled the first occurrence of an event_id is kept and later ones are rejected.
func (v *Validator) ValidateBatch(payloads []DecodedPayload) ([]ValidEvent, []ValidationError) {
	valid := make([]ValidEvent, 0, len(payloads))
	var validationErrors []ValidationError
	seen := make(map[string]struct{}, len(payloads))

	for _, payload := range payloads {
		event, err := v.validatePayload(payload.Fields)
		if err == nil && v.detectDuplicates {
			if _, dup := seen[event.EventID]; dup {
				err = fmt.Errorf("duplicate event_id %s in batch", event.EventID)
			} else {
				seen[event.EventID] = struct{}{}
			}
		}

		if err != nil {
			eventID := unknownEventID
			if id, ok := payload.Fields["event_id"].(string); ok && id != "" {
				eventID = id
			}

			v.log.Warn("Event failed validation",
				zap.String("event_id", eventID),
				zap.String("sequence_number", payload.SequenceNumber),
				zap.Error(err))

			validationErrors = append(validationErrors, ValidationError{
				EventID:        eventID,
				SequenceNumber: payload.SequenceNumber,
				Message:        err.Error(),
				Payload:        payload.Fields,
				Data:           payload.Data,
			})
			continue
		}

		valid = append(valid, ValidEvent{
			SequenceNumber: payload.SequenceNumber,
			Event:          event,
		})
	}

	return valid, validationErrors
}

func (v *Validator) validatePayload(fields map[string]interface{}) (domain.Event, error) {
	var problems []string

	requiredString := func(name string) string {
		raw, ok := fields[name]
		if !ok || raw == nil {
			return ""
		}
		s, ok := raw.(string)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s must be a string", name))
		}
		return s
	}

	schema := eventSchema{
		EventID:   requiredString("event_id"),
		UserID:    requiredString("user_id"),
		EventType: requiredString("event_type"),
		Timestamp: requiredString("timestamp"),
	}

	var experimentID string
	if raw, ok := fields["experiment_id"]; ok && raw != nil {
		s, isString := raw.(string)
		if !isString {
			problems = append(problems, "experiment_id must be a string")
		}
		experimentID = s
	}

	var properties map[string]interface{}
	if raw, ok := fields["properties"]; ok && raw != nil {
		m, isObject := raw.(map[string]interface{})
		if !isObject {
			problems = append(problems, "properties must be an object")
		}
		properties = m
	}

	if len(problems) > 0 {
		return domain.Event{}, errors.New(strings.Join(problems, "; "))
	}

	if err := v.validate.Struct(schema); err != nil {
		return domain.Event{}, describeValidation(err)
	}

	return domain.Event{
		EventID:      schema.EventID,
		UserID:       schema.UserID,
		EventType:    schema.EventType,
		Timestamp:    schema.Timestamp,
		ExperimentID: experimentID,
		Properties:   properties,
	}, nil
}

var schemaFieldNames = map[string]string{
	"EventID":   "event_id",
	"UserID":    "user_id",
	"EventType": "event_type",
	"Timestamp": "timestamp",
}

func describeValidation(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		field := schemaFieldNames[fe.Field()]
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "max":
			messages = append(messages, fmt.Sprintf("%s exceeds %s characters", field, fe.Param()))
		case "rfc3339":
			messages = append(messages, fmt.Sprintf("%s must be an RFC3339 timestamp", field))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}

	return errors.New(strings.Join(messages, "; "))
}
