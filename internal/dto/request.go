package dto

// AssignmentRequest represents a variant assignment request
type AssignmentRequest struct {
	UserID        string                 `json:"user_id" binding:"required" example:"user_123"`
	ExperimentKey string                 `json:"experiment_key" binding:"required" example:"checkout_button_color"`
	Context       map[string]interface{} `json:"context,omitempty" swaggertype:"object,string" example:"platform:ios,country:US"`
}
