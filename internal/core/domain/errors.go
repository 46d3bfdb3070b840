// Package domain defines the core domain models for beamcal.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form BC-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "BC-ALIGN-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.

func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.

func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.

func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Argument and state errors.
var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("BC-ARG-4000", "invalid argument")

	// ErrIncompleteState indicates an instrument state record with missing fields.
	ErrIncompleteState = NewDomainError("BC-STATE-4220", "incomplete instrument state")

	// ErrStateNotFound indicates a stored state could not be located.
	ErrStateNotFound = NewDomainError("BC-STORE-4040", "state not found")
)

// Calibration errors.
var (
	// ErrFocusModeNotSupported indicates a declared focus strategy without an implementation.
	ErrFocusModeNotSupported = NewDomainError("BC-FOCUS-5010", "focus mode not supported")

	// ErrFeatureNotFound indicates the detector did not locate a requested feature.
	ErrFeatureNotFound = NewDomainError("BC-ALIGN-4040", "feature not found")

	// ErrAlignmentIncomplete indicates an alignment pass aborted before its last scale.
	ErrAlignmentIncomplete = NewDomainError("BC-ALIGN-4220", "alignment incomplete")

	// ErrNotConverged describes a restore whose stage never reached the target.
	// It is reported in RestoreReport and logs, never returned from Restore.
	ErrNotConverged = NewDomainError("BC-STAGE-5030", "stage position did not converge")
)
