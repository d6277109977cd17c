package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reserve-snapshot/internal/report"
)

// APIError is the error body returned by every endpoint
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondRaw sends a stored JSON document byte for byte
func respondRaw(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// mapReportError maps report store errors to HTTP status codes.
func mapReportError(err error) (int, string, string) {
	var dateErr *invalidDateError
	switch {
	case errors.As(err, &dateErr):
		return http.StatusBadRequest, ErrCodeInvalidInput, dateErr.Error()
	case errors.Is(err, report.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "report not found"
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
	}
}

type invalidDateError struct {
	date string
}

func (e *invalidDateError) Error() string {
	return "report date must be YYYY-MM-DD, got " + e.date
}
