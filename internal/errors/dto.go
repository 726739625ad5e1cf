package errors

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display       string         `json:"message"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// NewErrorResponse builds an ErrorResponse from any error
func NewErrorResponse(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{Success: true}
	}
	return ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Display: err.Error(),
		},
	}
}
