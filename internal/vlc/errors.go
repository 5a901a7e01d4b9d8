package vlc

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorCode categorizes causal engine errors.
type ErrorCode string

const (
	// ErrCodeClockOverflow indicates a counter would exceed MaxCounter.
	// Fatal for the node identity: the engine refuses further advances.
	ErrCodeClockOverflow ErrorCode = "CLOCK_OVERFLOW"

	// ErrCodeMalformedClock indicates a snapshot with missing or invalid fields.
	ErrCodeMalformedClock ErrorCode = "MALFORMED_CLOCK"

	// ErrCodeHashMismatch indicates a snapshot whose clock_hash does not match
	// the hash recomputed from its clock and message id.
	ErrCodeHashMismatch ErrorCode = "HASH_MISMATCH"

	// ErrCodeStaleClock indicates a peer snapshot no newer than one already
	// merged from the same peer.
	ErrCodeStaleClock ErrorCode = "STALE_CLOCK"
)

// Error is a causal engine error with structured fields for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// NodeID identifies the node whose snapshot or counter is affected.
	NodeID string

	// MessageID identifies the message the snapshot is bound to, if known.
	MessageID string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.NodeID != "" && e.MessageID != "":
		return fmt.Sprintf("%s: %s (node=%s, message=%s)", e.Code, e.Message, e.NodeID, e.MessageID)
	case e.NodeID != "":
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.NodeID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, vlc.ErrHashMismatch).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Code sentinels for errors.Is.
var (
	ErrClockOverflow  = &Error{Code: ErrCodeClockOverflow, Message: "counter overflow"}
	ErrMalformedClock = &Error{Code: ErrCodeMalformedClock, Message: "malformed clock"}
	ErrHashMismatch   = &Error{Code: ErrCodeHashMismatch, Message: "clock hash mismatch"}
	ErrStaleClock     = &Error{Code: ErrCodeStaleClock, Message: "stale clock"}
)

// IsOverflow reports whether err is a ClockOverflow error.
func IsOverflow(err error) bool {
	return hasCode(err, ErrCodeClockOverflow)
}

// IsMalformed reports whether err is a MalformedClock error.
func IsMalformed(err error) bool {
	return hasCode(err, ErrCodeMalformedClock)
}

// IsHashMismatch reports whether err is a HashMismatch error.
func IsHashMismatch(err error) bool {
	return hasCode(err, ErrCodeHashMismatch)
}

// IsStale reports whether err is a StaleClock error.
func IsStale(err error) bool {
	return hasCode(err, ErrCodeStaleClock)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// NewOverflowError creates a ClockOverflow error for nodeID at counter.
func NewOverflowError(nodeID string, counter uint64) *Error {
	return &Error{
		Code:    ErrCodeClockOverflow,
		Message: "counter would exceed representable range",
		NodeID:  nodeID,
		Details: map[string]string{
			"counter": strconv.FormatUint(counter, 10),
			"max":     strconv.FormatUint(MaxCounter, 10),
		},
	}
}

// NewMalformedError creates a MalformedClock error naming the offending field.
func NewMalformedError(field, reason string) *Error {
	return &Error{
		Code:    ErrCodeMalformedClock,
		Message: fmt.Sprintf("%s: %s", field, reason),
		Details: map[string]string{"field": field},
	}
}

// NewHashMismatchError creates a HashMismatch error for info.
func NewHashMismatchError(info ClockInfo, computed string) *Error {
	return &Error{
		Code:      ErrCodeHashMismatch,
		Message:   "clock_hash does not match recomputed hash",
		NodeID:    info.NodeID,
		MessageID: info.MessageID,
		Details: map[string]string{
			"claimed":  info.ClockHash,
			"computed": computed,
		},
	}
}

// NewStaleError creates a StaleClock error for a peer snapshot at or below
// the count last merged from that peer.
func NewStaleError(peer ClockInfo, merged uint64) *Error {
	return &Error{
		Code:      ErrCodeStaleClock,
		Message:   "snapshot already covered by an earlier merge",
		NodeID:    peer.NodeID,
		MessageID: peer.MessageID,
		Details: map[string]string{
			"count":  strconv.FormatUint(peer.Count, 10),
			"merged": strconv.FormatUint(merged, 10),
		},
	}
}
