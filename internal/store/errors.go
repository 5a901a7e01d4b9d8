package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by point lookups that match no row.
	// It is a normal outcome, not a storage failure.
	ErrNotFound = errors.New("store: not found")

	// ErrTimeout is matched by errors caused by an expired context deadline.
	ErrTimeout = errors.New("store: timeout")
)

// Error is a storage failure during operation Op.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports deadline failures as ErrTimeout.
func (e *Error) Is(target error) bool {
	return target == ErrTimeout && errors.Is(e.Err, context.DeadlineExceeded)
}

// IsStoreError reports whether err is a storage failure (including timeouts).
// ErrNotFound is not a storage failure.
func IsStoreError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
