package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// Transaction queue errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrRetriesExhausted       = errors.New("retry limit exhausted")

	// Remote endpoint errors
	ErrConflict          = errors.New("transaction conflict detected")
	ErrRemoteUnavailable = errors.New("remote endpoint unavailable")

	// Sync lifecycle errors
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrOffline        = errors.New("no network connectivity")

	// Catalog errors
	ErrProductNotFound = errors.New("product not found in cache")
	ErrImageNotCached  = errors.New("no cached image for product")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// ConflictError carries the server's conflict payload verbatim so it can be
// surfaced for manual resolution. It unwraps to ErrConflict.
type ConflictError struct {
	Detail json.RawMessage
}

func (e *ConflictError) Error() string {
	if len(e.Detail) > 0 {
		return fmt.Sprintf("transaction conflict detected: %s", e.Detail)
	}
	return "transaction conflict detected"
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError creates a ConflictError with the server-provided detail.
func NewConflictError(detail json.RawMessage) *ConflictError {
	return &ConflictError{Detail: detail}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
