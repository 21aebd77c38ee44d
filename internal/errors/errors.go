// Package errors defines the service error taxonomy shared by services,
// middleware and the HTTP surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for callers and for transport status mapping.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidOperation Code = "INVALID_OPERATION"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeConflict         Code = "CONFLICT"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// ServiceError is the structured error surfaced to callers. Message is safe
// to return verbatim; the wrapped cause never leaves the process.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair for diagnostics.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NotFound reports a referenced entity that does not exist.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// InvalidOperation reports a business-rule violation.
func InvalidOperation(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalidOperation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Validation reports malformed input rejected before any mutation.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized reports a missing or rejected credential.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken reports a credential that failed validation.
func InvalidToken(cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeUnauthorized,
		Message:    "Could not validate credentials",
		HTTPStatus: http.StatusUnauthorized,
		cause:      cause,
	}
}

// Conflict reports a transient store-level conflict that may succeed on retry.
func Conflict(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict, cause: cause}
}

// Internal reports an unexpected failure. The cause is kept for logs only.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// GetServiceError extracts a ServiceError from err, or nil if there is none
// in the chain.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}
