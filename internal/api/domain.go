package api

// ErrorBody is the JSON shape of every error answer.
type ErrorBody struct {
	Success   bool   `json:"success" example:"false"`
	Error     string `json:"error" example:"originalPost: must not be empty"`
	Field     string `json:"field,omitempty" example:"originalPost"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp" example:"2025-01-02T15:04:05.999999999Z"`
}
