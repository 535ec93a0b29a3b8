package domain

import "time"

// AssignmentRetention is how long an assignment stays valid before the store may expire it
const AssignmentRetention = 90 * 24 * time.Hour

// Assignment is the persisted, immutable decision of which variant a user sees
type Assignment struct {
	ID            string                 `json:"assignment_id"`
	UserID        string                 `json:"user_id"`
	ExperimentID  string                 `json:"experiment_id"`
	ExperimentKey string                 `json:"experiment_key"`
	Variant       string                 `json:"variant"`
	CreatedAt     time.Time              `json:"timestamp"`
	Context       map[string]interface{} `json:"context,omitempty"`
	ExpiresAt     time.Time              `json:"expires_at"`
}

// ExpiryFor computes the retention marker for an assignment created at createdAt
func ExpiryFor(createdAt time.Time) time.Time {
	return createdAt.Add(AssignmentRetention)
}

// IsExpired reports whether the assignment must no longer be treated as valid
func (a *Assignment) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}
