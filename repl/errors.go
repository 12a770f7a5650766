package repl

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a torn-down session.
var ErrClosed = errors.New("session is closed")

// EvalError wraps a parse or runtime failure of evaluated code. It is
// surfaced on the session's error channel; the session itself stays
// usable and no partial highlight state is applied.
type EvalError struct {
	SessionID string
	Err       error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation failed: %v", e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// PrebakeError wraps a failed pending-initialization step. Every
// evaluation fails with it until the session is rebuilt.
type PrebakeError struct {
	Err error
}

func (e *PrebakeError) Error() string {
	return fmt.Sprintf("session setup failed: %v", e.Err)
}

func (e *PrebakeError) Unwrap() error { return e.Err }
