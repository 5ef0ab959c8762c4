package pump

import (
	"errors"
	"fmt"
)

// ParseError is returned when device output is not valid JSON or lacks an expected field.
type ParseError struct {
	Command string
	Field   string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("failed to parse %s output: field '%s': %v", e.Command, e.Field, e.Cause)
	}
	return fmt.Sprintf("failed to parse %s output: %v", e.Command, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NotFoundError is returned when a schedule has no entry for the requested time of day.
type NotFoundError struct {
	What string
	At   float64 // minutes since midnight
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found at minute %g", e.What, e.At)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// EmptyPageError is returned when a history page contains no entries before the
// requested range has been covered.
type EmptyPageError struct {
	Page int
}

func (e *EmptyPageError) Error() string {
	return fmt.Sprintf("history page %d is empty", e.Page)
}
