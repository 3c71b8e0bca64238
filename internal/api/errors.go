package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorCode is the machine-readable code carried by every error response.
type ErrorCode string

const (
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"

	// Request content problems.
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidJSON      ErrorCode = "INVALID_JSON"
	ErrCodeInvalidKey       ErrorCode = "INVALID_KEY"
	ErrCodeMissingField     ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidEventType ErrorCode = "INVALID_EVENT_TYPE"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Code      ErrorCode         `json:"code"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// writeError writes an ErrorResponse tagged with the chi request ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string, fields map[string]string) {
	resp := ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		Fields:    fields,
		RequestID: middleware.GetReqID(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// ValidationError reports per-field rule validation failures.
func ValidationError(w http.ResponseWriter, r *http.Request, message string, fields map[string]string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeValidation, message, fields)
}

func BadRequestError(w http.ResponseWriter, r *http.Request, code ErrorCode, message string) {
	writeError(w, r, http.StatusBadRequest, code, message, nil)
}

func BadRequestErrorWithFields(w http.ResponseWriter, r *http.Request, code ErrorCode, message string, fields map[string]string) {
	writeError(w, r, http.StatusBadRequest, code, message, fields)
}

func UnauthorizedError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, message, nil)
}

func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, message, nil)
}

func NotFoundError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusNotFound, ErrCodeNotFound, message, nil)
}

func RequestTooLargeError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, message, nil)
}

// RateLimitedError answers requests rejected by the ingest rate limiter.
func RateLimitedError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusTooManyRequests, ErrCodeRateLimited, message, nil)
}
