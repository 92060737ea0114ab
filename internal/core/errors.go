package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var (
	ErrInvalidDate        = &ValidationError{Field: "date", Message: "must be a valid YYYY-MM-DD date"}
	ErrInvalidDay         = &ValidationError{Field: "date", Message: "invalid day"}
	ErrInvalidMonth       = &ValidationError{Field: "date", Message: "invalid month"}
	ErrInvalidAmount      = &ValidationError{Field: "value", Message: "must be a finite number"}
	ErrNonPositiveAmount  = &ValidationError{Field: "amount", Message: "must be greater than zero"}
	ErrEmptyDescription   = &ValidationError{Field: "description", Message: "must not be empty"}
	ErrDescriptionTooLong = &ValidationError{Field: "description", Message: "too long (max 200 characters)"}
	ErrEmptyName          = &ValidationError{Field: "name", Message: "must not be empty"}
	ErrNameTooLong        = &ValidationError{Field: "name", Message: "too long (max 100 characters)"}
	ErrInvalidTarget      = &ValidationError{Field: "target", Message: "must be greater than zero"}
	ErrInvalidEmail       = &ValidationError{Field: "email", Message: "must be a valid address"}
	ErrWeakPassword       = &ValidationError{Field: "password", Message: "must have at least 6 characters"}
	ErrPasswordTooLong    = &ValidationError{Field: "password", Message: "too long (max 72 bytes)"}
)

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports a missing entity by id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a *NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// BackendError wraps a failure of the persistence layer. The underlying
// error is passed through unchanged.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackend reports whether err carries a *BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
