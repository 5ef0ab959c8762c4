package device

import (
	"fmt"
	"strings"
)

// Error is returned when a device command cannot be executed or exits non-zero.
type Error struct {
	Command string
	Args    []string
	Stderr  string
	Cause   error
}

func (e *Error) Error() string {
	call := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	if e.Stderr != "" {
		return fmt.Sprintf("device command '%s' failed: %v: %s", call, e.Cause, e.Stderr)
	}
	return fmt.Sprintf("device command '%s' failed: %v", call, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
