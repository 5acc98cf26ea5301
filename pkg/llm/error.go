// Package llm provides the OpenAI-compatible chat completion schema served by
// chatserve: request and response bodies, their defaults, and validation.
package llm

// Error types reported in ErrorDetail.Type.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeGeneration     = "generation_error"
	ErrorTypeNotFound       = "not_found_error"
	ErrorTypeServer         = "server_error"
)

// ErrorResponse is the body of every non-2xx JSON response and of the
// error event written into a failed stream.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a single failure.
type ErrorDetail struct {
	Message string       `json:"message"`
	Type    string       `json:"type"`
	Fields  []FieldError `json:"fields,omitempty"` // Set for validation failures only
}

// NewErrorResponse builds an ErrorResponse of the given type.
func NewErrorResponse(errType, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}}
}
