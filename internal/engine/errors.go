package engine

import (
	"errors"
	"fmt"
)

// RunError is the terminal error of an aborted run.
//
// Run errors include:
//   - Validation: the network, plan or timeline was rejected before any driver call
//   - Driver: the backend reported a fault or timeout
//   - Range: a value could not be mapped between declared ranges
//   - Cancelled: the caller's context was cancelled between events
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Time is the timeline position at which the run stopped.
	Time float64

	// Err is the underlying cause.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeValidation indicates the run never started.
	ErrCodeValidation RunErrorCode = "VALIDATION_FAILED"

	// ErrCodeDriver indicates a driver call failed.
	ErrCodeDriver RunErrorCode = "DRIVER_FAILED"

	// ErrCodeRange indicates an unrepresentable or degenerate mapping.
	ErrCodeRange RunErrorCode = "RANGE_FAILED"

	// ErrCodeCancelled indicates the context was cancelled.
	ErrCodeCancelled RunErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at t=%g: %s: %v", e.Code, e.Time, e.Message, e.Err)
	}
	return fmt.Sprintf("%s at t=%g: %s", e.Code, e.Time, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// DriverError wraps a failure reported by a Driver.
type DriverError struct {
	// Op is the driver operation: start, apply, advance, checkpoint or stop.
	Op   string
	Time float64
	Err  error
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	return fmt.Sprintf("driver %s at t=%g: %v", e.Op, e.Time, e.Err)
}

// Unwrap returns the driver's error.
func (e *DriverError) Unwrap() error {
	return e.Err
}

// IsDriverError returns true if err wraps a DriverError.
// Uses errors.As to handle wrapped errors.
func IsDriverError(err error) bool {
	var de *DriverError
	return errors.As(err, &de)
}

// IsCancelled returns true if the run stopped because its context was cancelled.
func IsCancelled(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCancelled
	}
	return false
}

// IsValidationFailure returns true if the run was rejected before it started.
func IsValidationFailure(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeValidation
	}
	return false
}
