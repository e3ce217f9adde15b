package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound         = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden        = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized     = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict         = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation       = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal         = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss        = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrAlreadyProcessed = New("ALREADY_PROCESSED", http.StatusConflict, "batch already processed")
)

// Domain errors raised by the protocol ledger and archive movement engine.
var (
	ErrInvalidHierarchy     = New("INVALID_HIERARCHY", http.StatusUnprocessableEntity, "location hierarchy rule violated")
	ErrAllocationExhausted  = New("ALLOCATION_EXHAUSTED", http.StatusConflict, "sequence allocation retries exhausted")
	ErrInvalidSubject       = New("INVALID_SUBJECT", http.StatusUnprocessableEntity, "no registry subject could be resolved")
	ErrAlreadyTracked       = New("ALREADY_TRACKED", http.StatusConflict, "target already has a protocol entry")
	ErrAlreadyOutstanding   = New("ALREADY_OUTSTANDING", http.StatusConflict, "document already has an open outbound movement")
	ErrMissingLocation      = New("MISSING_LOCATION", http.StatusUnprocessableEntity, "a physical location is required")
	ErrMissingConfiguration = New("MISSING_CONFIGURATION", http.StatusInternalServerError, "required configuration is not set")
	ErrNotRegistered        = New("NOT_REGISTERED", http.StatusPreconditionFailed, "target has no protocol entry")
	ErrInvalidLine          = New("INVALID_LINE", http.StatusUnprocessableEntity, "batch line is invalid")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
