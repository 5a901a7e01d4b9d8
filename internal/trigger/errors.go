package trigger

import (
	"errors"
	"fmt"
)

// PersistError reports a write that still failed after every retry.
//
// The in-memory clock has already advanced when this is returned, so the
// persisted history is now behind it.
type PersistError struct {
	// Op names the write that failed, e.g. "append merge log".
	Op string

	// Attempts is the number of tries made.
	Attempts int

	// MessageID identifies the event whose records are incomplete.
	MessageID string

	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts (message=%s): %v", e.Op, e.Attempts, e.MessageID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// IsPersistError reports whether err is a *PersistError.
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}

// ErrMessageMismatch is returned by Receive when the message id carried by
// the event disagrees with the snapshot's message id.
var ErrMessageMismatch = errors.New("trigger: message id does not match clock info")

// ErrClosed is returned by Emit after the pipeline was stopped.
var ErrClosed = errors.New("trigger: pipeline closed")
