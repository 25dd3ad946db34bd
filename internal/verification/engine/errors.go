package engine

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for engine calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the engine took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorUnavailable indicates the engine could not be reached or failed
	ErrorUnavailable ErrorCategory = "unavailable"

	// ErrorBadResponse indicates the engine answered outside its contract
	ErrorBadResponse ErrorCategory = "bad_response"

	// ErrorCircuitOpen indicates calls are short-circuited after repeated failures
	ErrorCircuitOpen ErrorCategory = "circuit_open"
)

// Error wraps engine failures with normalized categorization.
type Error struct {
	Category   ErrorCategory
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("engine [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("engine [%s]: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized engine error.
func NewError(category ErrorCategory, message string, underlying error) *Error {
	return &Error{Category: category, Message: message, Underlying: underlying}
}

// CategoryOf extracts the category, treating uncategorized errors as unavailability.
func CategoryOf(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ErrorUnavailable
}

// IsTimeout reports whether err is an engine timeout.
func IsTimeout(err error) bool {
	return CategoryOf(err) == ErrorTimeout
}
