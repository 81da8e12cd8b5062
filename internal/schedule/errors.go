package schedule

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes schedule failures.
type ErrorCode string

const (
	ErrCodeOffsetOutOfPhase ErrorCode = "OFFSET_OUT_OF_PHASE"
	ErrCodeInvalidDuration  ErrorCode = "INVALID_DURATION"
	ErrCodeInvalidPeriod    ErrorCode = "INVALID_PERIOD"
)

// ScheduleError reports a plan that cannot be laid out on a timeline.
type ScheduleError struct {
	Code ErrorCode
	// Phase is the offending phase index, or -1.
	Phase int
	// Command is the offending command index within Phase, or -1.
	Command int
	Message string
}

// Error implements the error interface.
func (e *ScheduleError) Error() string {
	switch {
	case e.Command >= 0:
		return fmt.Sprintf("%s: phases[%d].commands[%d]: %s", e.Code, e.Phase, e.Command, e.Message)
	case e.Phase >= 0:
		return fmt.Sprintf("%s: phases[%d]: %s", e.Code, e.Phase, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsScheduleError returns true if err wraps a ScheduleError.
func IsScheduleError(err error) bool {
	var se *ScheduleError
	return errors.As(err, &se)
}
