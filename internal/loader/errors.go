package loader

import (
	"errors"
	"fmt"
)

// Error codes, unified across bench and plan loading.
const (
	ErrCodeRead            = "E001" // File missing or unreadable
	ErrCodeFormat          = "E002" // Unsupported file extension
	ErrCodeSyntax          = "E003" // Parse failure
	ErrCodeSchema          = "E004" // Unknown field or wrong shape
	ErrCodeIncludeNotFound = "E005" // Phase include did not resolve
	ErrCodeIncludeCycle    = "E006" // Phase include refers back to itself
	ErrCodeFragment        = "E007" // Fragment carries fields only a plan may have
)

// LoadError reports a problem with one configuration file.
type LoadError struct {
	Path    string
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Path, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError returns true if err wraps a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// CodeOf returns the code of the LoadError wrapped by err, or "".
func CodeOf(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}
