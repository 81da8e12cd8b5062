package rangemap

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes range mapping failures.
type ErrorKind string

const (
	// Unrepresentable indicates the value cannot be expressed in the
	// destination range without clamping or extrapolating.
	Unrepresentable ErrorKind = "UNREPRESENTABLE"

	// DegenerateRange indicates the source range has zero width.
	DegenerateRange ErrorKind = "DEGENERATE_RANGE"
)

// Stage tags where in a chain a mapping failed.
type Stage string

const (
	StageDirect               Stage = "direct"
	StagePhysicalToElectrical Stage = "physical->electrical"
	StageConnection           Stage = "connection"
	StageElectricalToPhysical Stage = "electrical->physical"
)

// RangeError reports a value that could not be mapped between two ranges.
type RangeError struct {
	Kind   ErrorKind
	Stage  Stage
	Value  float64
	Source Range
	Dest   Range
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	switch e.Kind {
	case DegenerateRange:
		return fmt.Sprintf("%s at %s stage: source range %s has zero width", e.Kind, e.Stage, e.Source)
	default:
		return fmt.Sprintf("%s at %s stage: value %g from %s does not fit %s", e.Kind, e.Stage, e.Value, e.Source, e.Dest)
	}
}

// IsRangeError returns true if err wraps a RangeError.
func IsRangeError(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}

// IsUnrepresentable returns true if err wraps a RangeError of kind Unrepresentable.
func IsUnrepresentable(err error) bool {
	var re *RangeError
	if errors.As(err, &re) {
		return re.Kind == Unrepresentable
	}
	return false
}

// IsDegenerate returns true if err wraps a RangeError of kind DegenerateRange.
func IsDegenerate(err error) bool {
	var re *RangeError
	if errors.As(err, &re) {
		return re.Kind == DegenerateRange
	}
	return false
}
