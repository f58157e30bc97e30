package http

import (
	"fmt"
	"net/http"
)

// AppError is a handler failure with the status and code clients see.
// Err is logged but never serialized.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// WithError attaches the cause and returns e.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundError(msg string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", msg, http.StatusNotFound)
}

func BadRequestError(msg string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", msg, http.StatusBadRequest)
}

func ConflictError(msg string) *AppError {
	return NewAppError("ERR_CONFLICT", "", msg, http.StatusConflict)
}

func TooManyRequestsError(msg string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", "", msg, http.StatusTooManyRequests)
}

func ServiceUnavailableError(msg string) *AppError {
	return NewAppError("ERR_UNAVAILABLE", "", msg, http.StatusServiceUnavailable)
}

func InternalError(msg string) *AppError {
	return NewAppError("ERR_INTERNAL", "", msg, http.StatusInternalServerError)
}
