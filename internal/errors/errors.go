// Package errors defines the error taxonomy shared by every component:
// validation failures at ingestion, malformed query ranges, missing
// sources, and an unreachable store.
//
// All errors compose with the standard library's errors.Is/As. Callers
// classify with the Is* helpers rather than matching sentinel identity
// directly, so wrapped errors keep their category.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Not found
	ErrNotFound       = errors.New("not found")
	ErrSourceNotFound = errors.New("source not found")

	// Validation
	ErrValidation    = errors.New("validation failed")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Query parameters
	ErrInvalidRange = errors.New("invalid range")

	// Store
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreClosed      = errors.New("store is closed")

	// Lifecycle
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)

// ============================================================================
// Typed errors
// ============================================================================

// ValidationError reports a single malformed or out-of-range field in an
// ingested sample or request payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// RangeError reports malformed rollup window or bucket parameters.
type RangeError struct {
	Param  string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidRange) hold for every RangeError.
func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSourceNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsInvalidRange returns true if err is a malformed range/window error.
func IsInvalidRange(err error) bool {
	return errors.Is(err, ErrInvalidRange)
}

// IsStoreUnavailable returns true if err indicates the persistence layer
// cannot be reached.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrStoreClosed)
}

// IsRetriable returns true if the error is potentially retriable by the
// transport layer. The core itself never retries.
func IsRetriable(err error) bool {
	return IsStoreUnavailable(err)
}

// ============================================================================
// Error to HTTP status mapping
// ============================================================================

// HTTPStatus maps an error to the HTTP status code the transport layer
// should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return 200
	case IsValidation(err):
		return 400
	case IsInvalidRange(err):
		return 400
	case IsNotFound(err):
		return 404
	case IsStoreUnavailable(err):
		return 503
	case errors.Is(err, ErrNotRunning):
		return 503
	default:
		return 500
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WrapUnavailable marks a store operation failure as StoreUnavailable while
// keeping the driver error in the chain.
func WrapUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error naming the offending field.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewRange creates an invalid-range error naming the offending parameter.
func NewRange(param, reason string) error {
	return &RangeError{Param: param, Reason: reason}
}

// NewSourceNotFound creates a not-found error for a source identifier.
func NewSourceNotFound(sourceID string) error {
	return fmt.Errorf("source '%s': %w", sourceID, ErrSourceNotFound)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors so a rejected sample
// reports every offending field at once.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
