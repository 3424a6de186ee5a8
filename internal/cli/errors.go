package cli

import (
	"errors"
	"fmt"
)

const (
	ExitOK    = 0
	ExitFatal = 1
	// ExitGate is returned when a --fail-when condition holds for the run.
	ExitGate = 3
)

// Error carries the exit code a command failure maps to.
type Error struct {
	Op   string
	Msg  string
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an Error with the provided context.
func E(op, msg string, code int, err error) error {
	return &Error{Op: op, Msg: msg, Code: code, Err: err}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return ExitFatal
}
