package domain

import "time"

// StreamRecord is one transport-level record: an opaque sequence identifier and a base64 payload
type StreamRecord struct {
	SequenceNumber string `json:"sequenceNumber"`
	Data           string `json:"data"`
}

// DeadLetter is a permanently failed record forwarded to the dead-letter queue
type DeadLetter struct {
	SequenceNumber string    `json:"sequenceNumber"`
	Data           string    `json:"data"`
	Error          string    `json:"error"`
	Timestamp      time.Time `json:"timestamp"`

	// Kind is sent as a message attribute, not in the body
	Kind string `json:"-"`
}

// StageMetrics counts failures per pipeline stage for one batch
type StageMetrics struct {
	Received          int   `json:"received"`
	Decoded           int   `json:"decoded"`
	DecodeErrors      int   `json:"decode_errors"`
	Validated         int   `json:"validated"`
	ValidationErrors  int   `json:"validation_errors"`
	Enriched          int   `json:"enriched"`
	EnrichmentErrors  int   `json:"enrichment_errors"`
	Aggregated        int   `json:"aggregated"`
	AggregationSkips  int   `json:"aggregation_skipped"`
	AggregationErrors int   `json:"aggregation_errors"`
	Archived          int   `json:"archived"`
	ArchiveErrors     int   `json:"archive_errors"`
	DeadLettered      int   `json:"dead_lettered"`
	DeadLetterErrors  int   `json:"dead_letter_errors"`
	ElapsedMillis     int64 `json:"elapsed_ms"`
}

// BatchResult is the per-invocation tally reported to the transport
type BatchResult struct {
	SuccessCount  int           `json:"success_count"`
	FailureCount  int           `json:"failure_count"`
	FailedItemIDs []string      `json:"failed_item_ids"`
	Stages        StageMetrics  `json:"stages"`
	Elapsed       time.Duration `json:"-"`
	Catastrophic  bool          `json:"catastrophic,omitempty"`
}
