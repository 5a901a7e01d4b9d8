package wire

import (
	"fmt"

	"github.com/roach88/chronod/internal/vlc"
)

// Identity tells a node who sent an envelope.
type Identity uint32

const (
	IdentityClient Identity = 0
	IdentityServer Identity = 1
)

// Action tells a node whether an envelope writes events or reads history.
type Action uint32

const (
	ActionWrite Action = 0
	ActionRead  Action = 1
)

// Envelope is the outermost frame exchanged over the transport.
type Envelope struct {
	Identity Identity
	Action   Action
	Message  vlc.ApplicationMessage
}

// EventTrigger couples an application message with the snapshot produced
// for it. It is the unit gossiped between nodes.
type EventTrigger struct {
	ClockInfo vlc.ClockInfo
	Message   vlc.ApplicationMessage
}

// MarshalMessage encodes an application message.
func MarshalMessage(m vlc.ApplicationMessage) []byte {
	var e encoder
	e.putString(1, m.ID)
	e.putUint(2, uint64(m.Version))
	e.putUint(3, uint64(m.Type))
	e.putString(4, m.PublicKey)
	e.putBytes(5, m.Data)
	e.putBytes(6, m.Signature)
	e.putString(7, m.From)
	e.putString(8, m.To)
	return e.b
}

// UnmarshalMessage decodes an application message.
func UnmarshalMessage(b []byte) (vlc.ApplicationMessage, error) {
	var m vlc.ApplicationMessage
	err := walk(b, func(f field) error {
		var err error
		var v uint64
		switch f.num {
		case 1:
			m.ID, err = f.asString()
		case 2:
			v, err = f.asUint()
			m.Version = uint32(v)
		case 3:
			v, err = f.asUint()
			m.Type = vlc.MessageType(v)
		case 4:
			m.PublicKey, err = f.asString()
		case 5:
			m.Data, err = cloneBody(f)
		case 6:
			m.Signature, err = cloneBody(f)
		case 7:
			m.From, err = f.asString()
		case 8:
			m.To, err = f.asString()
		}
		return err
	})
	if err != nil {
		return vlc.ApplicationMessage{}, err
	}
	return m, nil
}

// cloneBody copies a bytes field so decoded values do not alias the
// caller's receive buffer.
func cloneBody(f field) ([]byte, error) {
	b, err := f.asBody()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// MarshalEnvelope encodes an envelope.
func MarshalEnvelope(env Envelope) []byte {
	var e encoder
	e.putUint(1, uint64(env.Identity))
	e.putUint(2, uint64(env.Action))
	e.putMessage(3, MarshalMessage(env.Message))
	return e.b
}

// UnmarshalEnvelope decodes an envelope. An envelope without a message is
// malformed.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	var hasMessage bool
	err := walk(b, func(f field) error {
		var err error
		var v uint64
		switch f.num {
		case 1:
			v, err = f.asUint()
			env.Identity = Identity(v)
		case 2:
			v, err = f.asUint()
			env.Action = Action(v)
		case 3:
			var body []byte
			if body, err = f.asBody(); err == nil {
				env.Message, err = UnmarshalMessage(body)
				hasMessage = true
			}
		}
		return err
	})
	if err != nil {
		return Envelope{}, err
	}
	if !hasMessage {
		return Envelope{}, fmt.Errorf("%w: envelope without message", ErrMalformed)
	}
	return env, nil
}

// MarshalEventTrigger encodes a gossiped event.
func MarshalEventTrigger(ev EventTrigger) []byte {
	var e encoder
	e.putMessage(1, MarshalClockInfo(ev.ClockInfo))
	e.putMessage(2, MarshalMessage(ev.Message))
	return e.b
}

// UnmarshalEventTrigger decodes a gossiped event. A missing or undecodable
// clock_info is reported as a vlc MalformedClock error.
func UnmarshalEventTrigger(b []byte) (EventTrigger, error) {
	var ev EventTrigger
	var hasClock bool
	err := walk(b, func(f field) error {
		var err error
		var body []byte
		switch f.num {
		case 1:
			if body, err = f.asBody(); err == nil {
				ev.ClockInfo, err = UnmarshalClockInfo(body)
				hasClock = true
			}
		case 2:
			if body, err = f.asBody(); err == nil {
				ev.Message, err = UnmarshalMessage(body)
			}
		}
		return err
	})
	if err != nil {
		if vlc.IsMalformed(err) {
			return EventTrigger{}, err
		}
		return EventTrigger{}, vlc.NewMalformedError("event_trigger", err.Error())
	}
	if !hasClock {
		return EventTrigger{}, vlc.NewMalformedError("clock_info", "missing")
	}
	return ev, nil
}
