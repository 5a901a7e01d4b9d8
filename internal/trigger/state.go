package trigger

import (
	"github.com/roach88/chronod/internal/vlc"
)

// State is the position of a peer event in the receive state machine.
type State int

const (
	StateReceived State = iota
	StateHashValidated
	StateMerged
	StatePersisted
	StateDispatched
	StateRejected
	StateDuplicate
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateHashValidated:
		return "hash_validated"
	case StateMerged:
		return "merged"
	case StatePersisted:
		return "persisted"
	case StateDispatched:
		return "dispatched"
	case StateRejected:
		return "rejected"
	case StateDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDispatched || s == StateRejected || s == StateDuplicate
}

// Event is a clock snapshot together with the message it is attached to.
// It is the unit that is persisted and gossiped.
type Event struct {
	Info    vlc.ClockInfo
	Message vlc.ApplicationMessage
}

// Outcome reports how far Receive got.
//
// Info is the local snapshot after the call: the merged snapshot once the
// state reaches Merged, the unchanged current snapshot for Duplicate, and
// zero for Rejected. Log is set from Merged on.
type Outcome struct {
	State State
	Info  vlc.ClockInfo
	Log   *vlc.MergeLog
}

// Stats counts pipeline outcomes since construction.
type Stats struct {
	Emitted       uint64 `json:"emitted"`
	Merged        uint64 `json:"merged"`
	Rejected      uint64 `json:"rejected"`
	Duplicates    uint64 `json:"duplicates"`
	StoreFailures uint64 `json:"store_failures"`
}
