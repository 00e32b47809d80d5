package types

// Envelope wraps every successful response body.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// APIError is the public error body. Details only carries validation and
// dependency messages; it is omitted otherwise.
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewError builds an error envelope. Empty details are dropped.
func NewError(code, message string, details []string) ErrorEnvelope {
	if len(details) == 0 {
		details = nil
	}
	return ErrorEnvelope{Error: APIError{Code: code, Message: message, Details: details}}
}
