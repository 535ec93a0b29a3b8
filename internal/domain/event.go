package domain

import "time"

// Event is a validated exposure/conversion event as emitted by a client
type Event struct {
	EventID      string                 `json:"event_id"`
	UserID       string                 `json:"user_id"`
	EventType    string                 `json:"event_type"`
	Timestamp    string                 `json:"timestamp"`
	ExperimentID string                 `json:"experiment_id,omitempty"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
}

// Time parses the event timestamp
func (e *Event) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, e.Timestamp)
}

// EnrichedEvent is an Event joined with the user's assignment and experiment metadata
type EnrichedEvent struct {
	Event

	AssignmentID        string   `json:"assignment_id,omitempty"`
	Variant             string   `json:"variant,omitempty"`
	ExperimentKey       string   `json:"experiment_key,omitempty"`
	ExperimentName      string   `json:"experiment_name,omitempty"`
	ExperimentStatus    string   `json:"experiment_status,omitempty"`
	TimeSinceAssignment *float64 `json:"time_since_assignment,omitempty"`

	EnrichmentError       bool   `json:"enrichment_error,omitempty"`
	EnrichmentErrorReason string `json:"enrichment_error_reason,omitempty"`
}
