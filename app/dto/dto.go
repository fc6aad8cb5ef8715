package dto

// APIResponse represents the standard API response structure
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty" validate:"omitempty"`
	Error   any    `json:"error,omitempty" validate:"omitempty"`
}

// ErrorDetail represents error details in API responses
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty" validate:"omitempty"`
}

// WebhookAck is the body returned to the processor for an accepted
// notification. Type tells which side of the union was handled.
type WebhookAck struct {
	Success bool   `json:"success"`
	Type    string `json:"type"` // "deposit" or "withdrawal"
}

// Pagination carries list paging parameters
type Pagination struct {
	Limit  int `json:"limit" validate:"omitempty,min=1,max=200"`
	Offset int `json:"offset" validate:"omitempty,min=0"`
}
