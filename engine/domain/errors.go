package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across engines.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTransport    = errors.New("transport failure")

	ErrRequired         = errors.New("is required")
	ErrOutOfRange       = errors.New("out of range")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrMissingContact   = errors.New("at least one contact is required")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrPasswordTooShort = errors.New("password too short")
)

// ValidationError wraps a sentinel with the offending field. It is returned
// before anything is sent over the wire.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Field, e.Wrapped, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// AuthError is a rejected login, registration or hydration. Message is safe
// to show to the user.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause == nil {
		return "auth: " + e.Message
	}
	return fmt.Sprintf("auth: %s: %v", e.Message, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }
