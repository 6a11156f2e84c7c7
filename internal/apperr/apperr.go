package apperr

import (
	"encoding/json"
	"net/http"
)

// Error is an application error with HTTP context. Handlers map service
// failures onto one of the constructors below and write it as JSON.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorResponse is the JSON response format for errors
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// WriteJSON writes the error as a JSON response
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: e})
}

// Validation errors (400)
func BadRequest(message string) *Error {
	return &Error{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func InvalidJSON(message string) *Error {
	return &Error{
		Code:       "INVALID_JSON",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Not found (404)
func NotFound(message string) *Error {
	return &Error{
		Code:       "NOT_FOUND",
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// Expired (410) - the slug existed but its lifetime has lapsed. Distinct
// from NotFound so clients can tell "never existed" from "gone".
func Gone(message string) *Error {
	return &Error{
		Code:       "EXPIRED",
		Message:    message,
		StatusCode: http.StatusGone,
	}
}

// Rate limited (429) - a usage quota is exhausted
func RateLimited(message string) *Error {
	return &Error{
		Code:       "RATE_LIMITED",
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// Server errors (500)
func Internal(message string) *Error {
	if message == "" {
		message = "An internal server error occurred"
	}
	return &Error{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}
