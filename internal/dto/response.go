package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"user_id is required"`
}

// AssignmentResponse represents the result of an assignment request. Variant is null when the user is
// excluded from the experiment.
type AssignmentResponse struct {
	UserID        string  `json:"user_id" example:"user_123"`
	ExperimentKey string  `json:"experiment_key" example:"checkout_button_color"`
	ExperimentID  string  `json:"experiment_id" example:"exp_42"`
	Variant       *string `json:"variant" example:"treatment"`
	AssignmentID  string  `json:"assignment_id,omitempty" example:"2f1c9a5e-7b0e-4c55-9d0b-2c6f3f1f8a11"`
	Excluded      bool    `json:"excluded" example:"false"`
}
