/*
errors.go - Centralized error taxonomy for the payroll engine

PURPOSE:
  All error kinds in one place. Every structured error unwraps to a sentinel
  so callers branch with errors.Is and never on message text.

ERROR CATEGORIES:
  1. Validation   - bad input shape or range, never silently corrected
  2. Not found    - unknown employee, record, rate table, definition
  3. Conflict     - overlapping validity windows, duplicate identities,
                    mutation of configuration already pinned by a record
  4. Config gap   - no configuration in force for the requested date
  5. State        - lifecycle transition not allowed (forward-only, year-end lock)

USAGE:
  if errors.Is(err, generic.ErrConflict) {
      var ce *generic.ConflictError
      errors.As(err, &ce)
  }

SEE ALSO:
  - api/handlers.go: maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrConfigurationGap  = errors.New("configuration gap")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports an input that cannot be accepted as given.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity of the given kind.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError blocks a write that would break a uniqueness or
// non-overlap invariant. Existing names the row that collided.
type ConflictError struct {
	Kind     string
	Existing string
	Message  string
}

func (e *ConflictError) Error() string {
	if e.Existing == "" {
		return fmt.Sprintf("%s conflict: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s conflict with %q: %s", e.Kind, e.Existing, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ConfigurationGapError reports that no configuration row is in force for a date.
type ConfigurationGapError struct {
	What string
	AsOf TimePoint
}

func (e *ConfigurationGapError) Error() string {
	return fmt.Sprintf("no %s effective as of %s", e.What, e.AsOf)
}

func (e *ConfigurationGapError) Unwrap() error { return ErrConfigurationGap }

// StateError reports a lifecycle transition that is not allowed.
type StateError struct {
	RecordID string
	From     string
	To       string
	Reason   string
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("record %s: cannot move from %s to %s", e.RecordID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StateError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for uniqueness, overlap and lifecycle conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidTransition)
}
