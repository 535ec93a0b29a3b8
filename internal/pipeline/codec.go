package pipeline

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// DecodeErrorKind classifies why a stream record could not be decoded
type DecodeErrorKind string

const (
	KindBase64     DecodeErrorKind = "base64_decode_error"
	KindUTF8       DecodeErrorKind = "utf8_decode_error"
	KindJSON       DecodeErrorKind = "json_parse_error"
	KindUnexpected DecodeErrorKind = "unexpected_error"
)

// DecodedPayload is the JSON object carried by one stream record
type DecodedPayload struct {
	SequenceNumber string
	Fields         map[string]interface{}

	// Data is the original base64 record data, kept for dead-lettering
	Data string
}

// DecodeError describes a record that failed decoding
type DecodeError struct {
	SequenceNumber string
	Kind           DecodeErrorKind
	Message        string
	Data           string
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Codec turns transport records into raw event payloads
type Codec struct {
	log *zap.Logger
}

// NewCodec creates a new stream record codec
func NewCodec(log *zap.Logger) *Codec {
	return &Codec{log: log}
}

// DecodeBatch decodes every record independently. A failing record yields a DecodeError and decoding
// continues with the rest of the batch.
func (c *Codec) DecodeBatch(records []domain.StreamRecord) ([]DecodedPayload, []DecodeError) {
	payloads := make([]DecodedPayload, 0, len(records))
	var decodeErrors []DecodeError

	for _, record := range records {
		payload, decodeErr := c.decodeRecord(record)
		if decodeErr != nil {
			c.log.Warn("Failed to decode record",
				zap.String("sequence_number", record.SequenceNumber),
				zap.String("kind", string(decodeErr.Kind)),
				zap.String("error", decodeErr.Message))
			decodeErrors = append(decodeErrors, *decodeErr)
			continue
		}
		payloads = append(payloads, payload)
	}

	return payloads, decodeErrors
}

func (c *Codec) decodeRecord(record domain.StreamRecord) (payload DecodedPayload, decodeErr *DecodeError) {
	fail := func(kind DecodeErrorKind, msg string) *DecodeError {
		return &DecodeError{
			SequenceNumber: record.SequenceNumber,
			Kind:           kind,
			Message:        msg,
			Data:           record.Data,
		}
	}

	defer func() {
		if r := recover(); r != nil {
			payload = DecodedPayload{}
			decodeErr = fail(KindUnexpected, fmt.Sprintf("panic while decoding: %v", r))
		}
	}()

	raw, err := base64.StdEncoding.DecodeString(record.Data)
	if err != nil {
		return DecodedPayload{}, fail(KindBase64, err.Error())
	}

	if !utf8.Valid(raw) {
		return DecodedPayload{}, fail(KindUTF8, "payload is not valid UTF-8")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return DecodedPayload{}, fail(KindJSON, err.Error())
	}
	if fields == nil {
		return DecodedPayload{}, fail(KindJSON, "payload is not a JSON object")
	}

	return DecodedPayload{
		SequenceNumber: record.SequenceNumber,
		Fields:         fields,
		Data:           record.Data,
	}, nil
}
