// Package apierror provides a centralized error response format for the
// callguard admin API. All handlers use WriteJSON to produce consistent,
// machine-readable error responses with stable error codes.
package apierror

import (
	"encoding/json"
	"net/http"
)

// ErrorCode is a machine-readable error classification string.
type ErrorCode string

// Admin API error codes. These form a public contract — operators and
// tooling can program against these stable codes. Do not rename or remove
// existing codes.
const (
	CircuitNotFound       ErrorCode = "CALLGUARD_CIRCUIT_NOT_FOUND"
	MethodNotAllowed      ErrorCode = "CALLGUARD_METHOD_NOT_ALLOWED"
	Forbidden             ErrorCode = "CALLGUARD_FORBIDDEN"
	AuthMissingToken      ErrorCode = "CALLGUARD_AUTH_MISSING_TOKEN"
	AuthInvalidToken      ErrorCode = "CALLGUARD_AUTH_INVALID_TOKEN"
	AuthInsufficientScope ErrorCode = "CALLGUARD_AUTH_INSUFFICIENT_SCOPE"
	RateLimitExceeded     ErrorCode = "CALLGUARD_RATE_LIMIT_EXCEEDED"
	InternalError         ErrorCode = "CALLGUARD_INTERNAL_ERROR"
)

// ErrorResponse is the standardized admin API error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// WriteJSON writes a structured JSON error response.
func WriteJSON(w http.ResponseWriter, status int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{ //nolint:errcheck
		Error:     http.StatusText(status),
		ErrorCode: string(code),
		Message:   message,
	})
}
