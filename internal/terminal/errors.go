package terminal

import (
	"errors"
	"fmt"
)

// ErrTargetNotFound reports that no executable path was supplied to drive.
var ErrTargetNotFound = errors.New("claude executable not found")

// SessionError is an unexpected failure while launching or driving a session.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *SessionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func sessionError(op string, err error) error {
	return &SessionError{Op: op, Err: err}
}
