package vlc

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ClockInfo is an immutable snapshot of a vector clock bound to one message.
//
// Count always equals Clock[NodeID]. ClockHash is ComputeHash(Clock, MessageID)
// and acts as the content-addressed identity of the snapshot.
type ClockInfo struct {
	Clock     Clock  `json:"clock"`
	NodeID    string `json:"node_id"`
	ClockHash string `json:"clock_hash"`
	MessageID string `json:"message_id"`
	Count     uint64 `json:"count"`
	CreateAt  int64  `json:"create_at"` // milliseconds since epoch
}

// MergeLog records one reconciliation of two snapshots.
//
// FromID/StartCount/SClockHash describe the local snapshot that initiated the
// merge; ToID/EndCount/EClockHash describe the peer snapshot folded into it.
type MergeLog struct {
	FromID     string `json:"from_id"`
	ToID       string `json:"to_id"`
	StartCount uint64 `json:"start_count"`
	EndCount   uint64 `json:"end_count"`
	SClockHash string `json:"s_clock_hash"`
	EClockHash string `json:"e_clock_hash"`
	MergeAt    int64  `json:"merge_at"` // milliseconds since epoch
}

// MessageType identifies the kind of application payload.
type MessageType uint32

const (
	MessageTypeChat    MessageType = 0
	MessageTypeEvent   MessageType = 1
	MessageTypeClock   MessageType = 2
	MessageTypeGateway MessageType = 3
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeChat:
		return "chat"
	case MessageTypeEvent:
		return "event"
	case MessageTypeClock:
		return "clock"
	case MessageTypeGateway:
		return "gateway"
	default:
		return "type(" + strconv.FormatUint(uint64(t), 10) + ")"
	}
}

// ParseMessageType accepts a type name ("chat", "event", "clock",
// "gateway") or its decimal value.
func ParseMessageType(s string) (MessageType, error) {
	for _, t := range []MessageType{MessageTypeChat, MessageTypeEvent, MessageTypeClock, MessageTypeGateway} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown message type %q", s)
	}
	return MessageType(n), nil
}

// ApplicationMessage is the opaque application payload a ClockInfo is
// attached to. The engine never interprets Data.
type ApplicationMessage struct {
	ID        string      `json:"message_id"`
	Version   uint32      `json:"version,omitempty"`
	Type      MessageType `json:"type"`
	PublicKey string      `json:"public_key,omitempty"`
	Data      []byte      `json:"data"`
	Signature []byte      `json:"signature,omitempty"`
	From      string      `json:"from"`
	To        string      `json:"to"`
}

// Validate checks that a snapshot received from a peer is well formed.
// It does not verify the hash; see VerifyHash.
func (ci ClockInfo) Validate() error {
	if err := validateIdentifier("node_id", ci.NodeID); err != nil {
		return err
	}
	if err := validateIdentifier("message_id", ci.MessageID); err != nil {
		return err
	}
	if !isHexHash(ci.ClockHash) {
		return NewMalformedError("clock_hash", "must be 64 lowercase hex characters")
	}
	if ci.Clock == nil {
		return NewMalformedError("clock", "missing")
	}
	for k, v := range ci.Clock {
		if err := validateIdentifier("clock key", k); err != nil {
			return err
		}
		if v > MaxCounter {
			return NewMalformedError("clock", "counter for "+k+" exceeds maximum")
		}
	}
	if ci.Count == 0 {
		return NewMalformedError("count", "must be positive")
	}
	if ci.Clock[ci.NodeID] != ci.Count {
		return NewMalformedError("count", "does not equal clock[node_id]")
	}
	if ci.CreateAt < 0 {
		return NewMalformedError("create_at", "must not be negative")
	}
	return nil
}

// Validate checks the identifiers of an application message. Data is
// opaque and To may be empty for broadcasts.
func (m ApplicationMessage) Validate() error {
	if err := validateIdentifier("message_id", m.ID); err != nil {
		return err
	}
	if err := validateIdentifier("from", m.From); err != nil {
		return err
	}
	if m.To != "" {
		return validateIdentifier("to", m.To)
	}
	return nil
}

// ValidateNodeID checks that id can be used as a clock key.
func ValidateNodeID(id string) error {
	return validateIdentifier("node_id", id)
}

// validateIdentifier rejects empty, non-UTF-8 and non-NFC identifiers.
// Requiring NFC keeps canonical serialization unambiguous: two visually
// identical identifiers cannot hash differently.
func validateIdentifier(field, s string) error {
	if s == "" {
		return NewMalformedError(field, "missing")
	}
	if !utf8.ValidString(s) {
		return NewMalformedError(field, "invalid UTF-8")
	}
	if !norm.NFC.IsNormalString(s) {
		return NewMalformedError(field, "not NFC normalized")
	}
	return nil
}

func isHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
