// Package shared contains common domain types, errors and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Competition state errors
	ErrUnresolvedIdentity   = errors.New("identity cannot be resolved")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrChannelNotConfigured = errors.New("posting channel not configured")
	ErrWrongChannel         = errors.New("command used outside the posting channel")

	// Authorization errors
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")

	// Concurrency errors
	ErrConcurrentWriteConflict = errors.New("concurrent write conflict")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "competition", "leaderboard", "schedule"
	Op      string // Operation that failed, e.g., "RecordSubmission"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Competition domain errors
var (
	ErrParticipantNotFound   = NewDomainError("competition", "Find", ErrNotFound, "participant not found")
	ErrCompetitionNotFound   = NewDomainError("competition", "FindConfig", ErrNotFound, "competition not configured")
	ErrCompetitionNotStarted = NewDomainError("competition", "Anchor", ErrConfigurationMissing, "competition has no start date")
	ErrStepCountOutOfRange   = NewDomainError("competition", "Validate", ErrValueOutOfRange, "step count must be between 0 and 1000000")
	ErrInvalidScope          = NewDomainError("competition", "Validate", ErrInvalidID, "invalid competition scope")
	ErrInvalidParticipantID  = NewDomainError("competition", "Validate", ErrInvalidID, "invalid participant ID")
	ErrInvalidSource         = NewDomainError("competition", "Validate", ErrInvalidInput, "invalid submission source")
	ErrSubmissionConflict    = NewDomainError("competition", "AppendOrReplaceSubmission", ErrConcurrentWriteConflict, "submission window was modified concurrently")
)

// Identity link errors
var (
	ErrLinkNotFound       = NewDomainError("identity", "Find", ErrNotFound, "identity link not found")
	ErrChatIdentityLinked = NewDomainError("identity", "Link", ErrAlreadyExists, "chat identity is already linked to a device")
	ErrDeviceLinked       = NewDomainError("identity", "Link", ErrAlreadyExists, "device is already linked to another chat identity")
	ErrDeviceNotFound     = NewDomainError("identity", "Link", ErrUnresolvedIdentity, "no participant with this device name")
)

// Schedule errors
var (
	ErrInvalidDayOfWeek = NewDomainError("schedule", "Validate", ErrValueOutOfRange, "day of week must be between 0 and 6")
	ErrInvalidHour      = NewDomainError("schedule", "Validate", ErrValueOutOfRange, "hour must be between 0 and 23")
	ErrInvalidMinute    = NewDomainError("schedule", "Validate", ErrValueOutOfRange, "minute must be between 0 and 59")
	ErrInvalidInterval  = NewDomainError("schedule", "Validate", ErrValueOutOfRange, "interval weeks must be at least 1")
)

// External service errors
var (
	ErrDiscordAPIFailed = NewDomainError("discord", "Request", ErrExternalService, "Discord API request failed")
	ErrLockNotAcquired  = NewDomainError("lock", "Acquire", ErrAlreadyExists, "lock held by another worker")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConfigurationMissing reports whether a fallback-able configuration is absent.
func IsConfigurationMissing(err error) bool {
	return errors.Is(err, ErrConfigurationMissing) || errors.Is(err, ErrChannelNotConfigured)
}

// IsConflict reports a concurrent write conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentWriteConflict)
}

// IsPermission checks authorization failures.
func IsPermission(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrPermissionDenied)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentWriteConflict)
}
