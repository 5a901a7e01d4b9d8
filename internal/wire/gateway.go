package wire

import (
	"github.com/roach88/chronod/internal/vlc"
)

// GatewayRequest is a read request against a node's causal history.
// Kind and Method carry the numeric selectors defined by package gateway.
type GatewayRequest struct {
	RequestID string
	Kind      uint32
	Method    uint32
	MessageID string // by-id lookups
	After     int64  // by-cursor scans: exclusive lower bound
	Limit     uint32 // by-cursor scans: maximum batch size, 0 for server default
}

// GatewayResponse answers a GatewayRequest. Data holds an encoded
// ClockInfo, Message, page or Status depending on the request.
type GatewayResponse struct {
	RequestID string
	Success   bool
	Code      uint32
	Message   string
	Data      []byte
}

// Status holds the total number of stored records per kind.
type Status struct {
	ClockInfos uint64 `json:"clock_infos"`
	MergeLogs  uint64 `json:"merge_logs"`
	Messages   uint64 `json:"messages"`
}

// ClockInfoEntry is one row of a ClockInfoPage; Seq is the row cursor.
type ClockInfoEntry struct {
	Seq  int64
	Info vlc.ClockInfo
}

// MergeLogEntry is one row of a MergeLogPage.
type MergeLogEntry struct {
	Seq int64
	Log vlc.MergeLog
}

// MessageEntry is one row of a MessagePage.
type MessageEntry struct {
	Seq     int64
	Message vlc.ApplicationMessage
}

// MarshalGatewayRequest encodes a gateway request.
func MarshalGatewayRequest(r GatewayRequest) []byte {
	var e encoder
	e.putString(1, r.RequestID)
	e.putUint(2, uint64(r.Kind))
	e.putUint(3, uint64(r.Method))
	e.putString(4, r.MessageID)
	e.putInt(5, r.After)
	e.putUint(6, uint64(r.Limit))
	return e.b
}

// UnmarshalGatewayRequest decodes a gateway request.
func UnmarshalGatewayRequest(b []byte) (GatewayRequest, error) {
	var r GatewayRequest
	err := walk(b, func(f field) error {
		var err error
		var v uint64
		switch f.num {
		case 1:
			r.RequestID, err = f.asString()
		case 2:
			v, err = f.asUint()
			r.Kind = uint32(v)
		case 3:
			v, err = f.asUint()
			r.Method = uint32(v)
		case 4:
			r.MessageID, err = f.asString()
		case 5:
			r.After, err = f.asInt()
		case 6:
			v, err = f.asUint()
			r.Limit = uint32(v)
		}
		return err
	})
	if err != nil {
		return GatewayRequest{}, err
	}
	return r, nil
}

// MarshalGatewayResponse encodes a gateway response.
func MarshalGatewayResponse(r GatewayResponse) []byte {
	var e encoder
	e.putString(1, r.RequestID)
	e.putBool(2, r.Success)
	e.putUint(3, uint64(r.Code))
	e.putString(4, r.Message)
	e.putBytes(5, r.Data)
	return e.b
}

// UnmarshalGatewayResponse decodes a gateway response.
func UnmarshalGatewayResponse(b []byte) (GatewayResponse, error) {
	var r GatewayResponse
	err := walk(b, func(f field) error {
		var err error
		var v uint64
		switch f.num {
		case 1:
			r.RequestID, err = f.asString()
		case 2:
			r.Success, err = f.asBool()
		case 3:
			v, err = f.asUint()
			r.Code = uint32(v)
		case 4:
			r.Message, err = f.asString()
		case 5:
			r.Data, err = cloneBody(f)
		}
		return err
	})
	if err != nil {
		return GatewayResponse{}, err
	}
	return r, nil
}

// MarshalStatus encodes record totals.
func MarshalStatus(s Status) []byte {
	var e encoder
	e.putUint(1, s.ClockInfos)
	e.putUint(2, s.MergeLogs)
	e.putUint(3, s.Messages)
	return e.b
}

// UnmarshalStatus decodes record totals.
func UnmarshalStatus(b []byte) (Status, error) {
	var s Status
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			s.ClockInfos, err = f.asUint()
		case 2:
			s.MergeLogs, err = f.asUint()
		case 3:
			s.Messages, err = f.asUint()
		}
		return err
	})
	if err != nil {
		return Status{}, err
	}
	return s, nil
}

// MarshalClockInfoPage encodes a page of snapshots in the given order.
func MarshalClockInfoPage(entries []ClockInfoEntry) []byte {
	var e encoder
	for _, en := range entries {
		e.putMessage(1, appendEntry(en.Seq, MarshalClockInfo(en.Info)))
	}
	return e.b
}

// UnmarshalClockInfoPage decodes a page of snapshots.
func UnmarshalClockInfoPage(b []byte) ([]ClockInfoEntry, error) {
	entries := []ClockInfoEntry{}
	err := walkEntries(b, func(seq int64, body []byte) error {
		info, err := UnmarshalClockInfo(body)
		if err != nil {
			return err
		}
		entries = append(entries, ClockInfoEntry{Seq: seq, Info: info})
		return nil
	})
	return entries, err
}

// MarshalMergeLogPage encodes a page of merge logs in the given order.
func MarshalMergeLogPage(entries []MergeLogEntry) []byte {
	var e encoder
	for _, en := range entries {
		e.putMessage(1, appendEntry(en.Seq, MarshalMergeLog(en.Log)))
	}
	return e.b
}

// UnmarshalMergeLogPage decodes a page of merge logs.
func UnmarshalMergeLogPage(b []byte) ([]MergeLogEntry, error) {
	entries := []MergeLogEntry{}
	err := walkEntries(b, func(seq int64, body []byte) error {
		log, err := UnmarshalMergeLog(body)
		if err != nil {
			return err
		}
		entries = append(entries, MergeLogEntry{Seq: seq, Log: log})
		return nil
	})
	return entries, err
}

// MarshalMessagePage encodes a page of application messages in the given order.
func MarshalMessagePage(entries []MessageEntry) []byte {
	var e encoder
	for _, en := range entries {
		e.putMessage(1, appendEntry(en.Seq, MarshalMessage(en.Message)))
	}
	return e.b
}

// UnmarshalMessagePage decodes a page of application messages.
func UnmarshalMessagePage(b []byte) ([]MessageEntry, error) {
	entries := []MessageEntry{}
	err := walkEntries(b, func(seq int64, body []byte) error {
		m, err := UnmarshalMessage(body)
		if err != nil {
			return err
		}
		entries = append(entries, MessageEntry{Seq: seq, Message: m})
		return nil
	})
	return entries, err
}

func appendEntry(seq int64, record []byte) []byte {
	var e encoder
	e.putInt(1, seq)
	e.putMessage(2, record)
	return e.b
}

func walkEntries(b []byte, fn func(seq int64, record []byte) error) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		body, err := f.asBody()
		if err != nil {
			return err
		}
		var seq int64
		var record []byte
		err = walk(body, func(ef field) error {
			var err error
			switch ef.num {
			case 1:
				seq, err = ef.asInt()
			case 2:
				record, err = ef.asBody()
			}
			return err
		})
		if err != nil {
			return err
		}
		return fn(seq, record)
	})
}
