package network

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationCode categorizes a single validation issue.
type ValidationCode string

const (
	ErrCodeDuplicateDevice       ValidationCode = "DUPLICATE_DEVICE"
	ErrCodeDuplicatePort         ValidationCode = "DUPLICATE_PORT"
	ErrCodeUnknownReference      ValidationCode = "UNKNOWN_REFERENCE"
	ErrCodeIncompatibleDirection ValidationCode = "INCOMPATIBLE_DIRECTION"
	ErrCodeDomainMismatch        ValidationCode = "DOMAIN_MISMATCH"
	ErrCodeMultipleDrivers       ValidationCode = "MULTIPLE_DRIVERS"
	ErrCodeInvalidFlags          ValidationCode = "INVALID_FLAGS"
	ErrCodeInvalidRange          ValidationCode = "INVALID_RANGE"
	ErrCodeInvalidName           ValidationCode = "INVALID_NAME"
	ErrCodeUnknownKind           ValidationCode = "UNKNOWN_KIND"

	// Codes used when checking a test plan against a built network.
	ErrCodeUnknownTarget    ValidationCode = "UNKNOWN_TARGET"
	ErrCodeUnknownSignal    ValidationCode = "UNKNOWN_SIGNAL"
	ErrCodeDuplicateLogging ValidationCode = "DUPLICATE_LOGGING"
	ErrCodeInvalidCommand   ValidationCode = "INVALID_COMMAND"
	ErrCodeInvalidLogging   ValidationCode = "INVALID_LOGGING"
)

// Issue is one problem found during validation.
type Issue struct {
	Code    ValidationCode `json:"code"`
	Field   string         `json:"field"`
	Message string         `json:"message"`
}

// String renders the issue as "CODE field: message".
func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s %s: %s", i.Code, i.Field, i.Message)
}

// ValidationError collects every issue found while building a network or
// checking a plan against one. Validation does not stop at the first issue.
type ValidationError struct {
	Issues []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "validation failed: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("validation failed with %d issues: %s", len(e.Issues), strings.Join(parts, "; "))
}

// Has reports whether any issue carries code.
func (e *ValidationError) Has(code ValidationCode) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the issue codes in the order they were found.
func (e *ValidationError) Codes() []ValidationCode {
	codes := make([]ValidationCode, len(e.Issues))
	for i, issue := range e.Issues {
		codes[i] = issue.Code
	}
	return codes
}

// Issues accumulates validation issues. The zero value is ready to use.
type Issues struct {
	list []Issue
}

// Add records an issue.
func (is *Issues) Add(code ValidationCode, field, format string, args ...any) {
	is.list = append(is.list, Issue{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns a *ValidationError if any issue was recorded, nil otherwise.
func (is *Issues) Err() error {
	if len(is.list) == 0 {
		return nil
	}
	return &ValidationError{Issues: append([]Issue(nil), is.list...)}
}

// IsValidationError returns true if err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HasCode returns true if err wraps a ValidationError holding code.
func HasCode(err error, code ValidationCode) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Has(code)
	}
	return false
}

// IsMultipleDrivers returns true if err reports a port driven by more than one connection.
func IsMultipleDrivers(err error) bool {
	return HasCode(err, ErrCodeMultipleDrivers)
}
