/*
errors.go - Error taxonomy for the insurance engine

PURPOSE:
  All error kinds in one place. Every error surfaced by the engine carries a
  stable Kind and a human message; validation errors also carry the offending
  fields. Stores return the sentinels (optionally wrapped) and services
  translate them into *Error values with a message fit for the caller.

ERROR KINDS:
  not_found      Referenced entity absent
  conflict       Uniqueness / eligibility violation (duplicate plate, active coverage)
  invalid_state  Operation not allowed in the current lifecycle state
  validation     Malformed or out-of-range input (field-level list)
  forbidden      Ownership / role check failed
  unauthorized   No identity supplied

USAGE:
  if errors.Is(err, insurance.ErrInvalidState) { ... }
  switch insurance.KindOf(err) { case insurance.KindConflict: ... }

SEE ALSO:
  - validate.go: builds *ValidationError from struct tags
  - api/handlers.go: maps kinds to HTTP status codes
*/
package insurance

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness or eligibility invariant
	// would be violated.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState is returned when the entity is in the wrong lifecycle
	// state for the requested transition.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the caller may not act on the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized is returned when no caller identity is present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSequenceUnavailable is returned when a human code cannot be minted.
	// Creation is aborted; nothing is persisted.
	ErrSequenceUnavailable = errors.New("sequence unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalidState Kind = "invalid_state"
	KindValidation   Kind = "validation"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

var kindSentinels = map[Kind]error{
	KindNotFound:     ErrNotFound,
	KindConflict:     ErrConflict,
	KindInvalidState: ErrInvalidState,
	KindValidation:   ErrValidation,
	KindForbidden:    ErrForbidden,
	KindUnauthorized: ErrUnauthorized,
}

// Error is a domain error with a stable kind and a human message.
type Error struct {
	Kind    Kind
	Message string
	Entity  string // e.g. "policy", "premium"
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func notFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func conflict(entity, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

func invalidState(entity, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// lookupErr turns a store lookup failure into a domain error.
func lookupErr(entity, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return notFound(entity, id)
	}
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add appends a field error.
func (e *ValidationError) Add(field string, value any, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Value: value, Message: message})
}

// OrNil returns nil when no field was rejected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf classifies any error returned by the engine.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// MessageOf returns the human message of a domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if errors.Is(err, ErrValidation) {
		return "validation failed"
	}
	return err.Error()
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true for uniqueness/eligibility violations.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsInvalidState returns true for lifecycle violations.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindConflict, KindInvalidState, KindValidation, KindForbidden, KindUnauthorized:
		return true
	}
	return false
}
