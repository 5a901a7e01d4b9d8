package gateway

import (
	"fmt"
	"strings"
)

// Kind selects the record type a request reads.
type Kind uint32

const (
	KindClockInfo Kind = iota
	KindMergeLog
	KindMessage
)

// Kinds lists every Kind in wire order.
var Kinds = []Kind{KindClockInfo, KindMergeLog, KindMessage}

func (k Kind) String() string {
	switch k {
	case KindClockInfo:
		return "clock_info"
	case KindMergeLog:
		return "merge_log"
	case KindMessage:
		return "message"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k <= KindMessage
}

// ParseKind accepts the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalid, s)
}

// Method selects how records are read.
type Method uint32

const (
	MethodByID Method = iota
	MethodByCursor
	MethodStatus
)

// Methods lists every Method in wire order.
var Methods = []Method{MethodByID, MethodByCursor, MethodStatus}

func (m Method) String() string {
	switch m {
	case MethodByID:
		return "by_id"
	case MethodByCursor:
		return "by_cursor"
	case MethodStatus:
		return "status"
	default:
		return fmt.Sprintf("method(%d)", uint32(m))
	}
}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return m <= MethodStatus
}

// ParseMethod accepts the String form of a Method.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown method %q", ErrInvalid, s)
}

// Code classifies a response.
type Code uint32

const (
	CodeOK Code = iota
	CodeInvalid
	CodeNotFound
	CodeUnsupported
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalid:
		return "INVALID"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeUnsupported:
		return "UNSUPPORTED"
	case CodeInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("CODE(%d)", uint32(c))
	}
}
