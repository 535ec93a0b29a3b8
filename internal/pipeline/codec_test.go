package pipeline

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

func TestCodec_DecodeBatch_IsolatesBadBase64(t *testing.T) {
	codec := NewCodec(zap.NewNop())

	records := make([]domain.StreamRecord, 0, 10)
	for i := 1; i <= 10; i++ {
		if i == 3 || i == 7 {
			records = append(records, domain.StreamRecord{SequenceNumber: seq(i), Data: "!!not-base64!!"})
			continue
		}
		records = append(records, encodeRecord(seq(i), eventPayload(seq(i), "user_1", "")))
	}

	payloads, decodeErrors := codec.DecodeBatch(records)

	require.Len(t, decodeErrors, 2)
	assert.Len(t, payloads, 8)
	assert.Equal(t, "3", decodeErrors[0].SequenceNumber)
	assert.Equal(t, "7", decodeErrors[1].SequenceNumber)
	assert.Equal(t, KindBase64, decodeErrors[0].Kind)
	assert.Equal(t, "!!not-base64!!", decodeErrors[0].Data)
	assert.Equal(t, "1", payloads[0].SequenceNumber)
	assert.Equal(t, "user_1", payloads[0].Fields["user_id"])
}

func TestCodec_DecodeBatch_ErrorKinds(t *testing.T) {
	codec := NewCodec(zap.NewNop())

	tests := []struct {
		name string
		raw  []byte
		want DecodeErrorKind
	}{
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}, KindUTF8},
		{"malformed json", []byte(`{"event_id": `), KindJSON},
		{"json array", []byte(`[1,2,3]`), KindJSON},
		{"json null", []byte(`null`), KindJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := domain.StreamRecord{
				SequenceNumber: "seq-1",
				Data:           base64.StdEncoding.EncodeToString(tt.raw),
			}

			payloads, decodeErrors := codec.DecodeBatch([]domain.StreamRecord{record})

			assert.Empty(t, payloads)
			require.Len(t, decodeErrors, 1)
			assert.Equal(t, tt.want, decodeErrors[0].Kind)
			assert.Equal(t, "seq-1", decodeErrors[0].SequenceNumber)
			assert.NotEmpty(t, decodeErrors[0].Message)
		})
	}
}

func TestCodec_DecodeBatch_Empty(t *testing.T) {
	codec := NewCodec(zap.NewNop())

	payloads, decodeErrors := codec.DecodeBatch(nil)

	assert.Empty(t, payloads)
	assert.Empty(t, decodeErrors)
}
