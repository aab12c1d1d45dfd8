package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores and
// services to communicate engine-specific error conditions. Transport layers
// map them to status codes; everything else wraps them with fmt.Errorf.
// -----------------------------------------------------------------------------

// Request errors
var (
	ErrInvalidConfig       = errors.New("invalid session config")
	ErrInvalidAnswerFormat = errors.New("invalid answer format")
)

// Access errors
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Lookup errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrAnswerNotFound  = errors.New("answer not found")
)

// State errors
var (
	ErrSessionCompleted   = errors.New("session completed")
	ErrConflict           = errors.New("conflict")
	ErrDuplicateAnswer    = errors.New("duplicate answer id")
	ErrRatingUpdateFailed = errors.New("rating update failed")
)

// Infrastructure errors
var (
	ErrTimeout            = errors.New("timeout")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError describes a rejected request field. It unwraps to its Kind
// so callers can match on the sentinel with errors.Is.
type ValidationError struct {
	Kind   error
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// InvalidConfig builds a ValidationError of kind ErrInvalidConfig.
func InvalidConfig(field, reason string) error {
	return &ValidationError{Kind: ErrInvalidConfig, Field: field, Reason: reason}
}

// InvalidAnswer builds a ValidationError of kind ErrInvalidAnswerFormat.
func InvalidAnswer(field, reason string) error {
	return &ValidationError{Kind: ErrInvalidAnswerFormat, Field: field, Reason: reason}
}
