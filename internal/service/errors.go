package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before it reached the store.
	ErrValidation = errors.New("validation failed")

	// ErrStore marks a store call that failed or was rejected.
	ErrStore = errors.New("store failed")

	// ErrSessionClosed is returned for work submitted to a stopped session.
	ErrSessionClosed = errors.New("session closed")
)

// ValidationError describes why a local mutation was refused.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StoreError wraps a failed store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsUserError reports whether err should be shown to the user as a message
// rather than treated as an internal failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrStore)
}
