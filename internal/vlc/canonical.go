package vlc

import (
	"bytes"
	"strconv"
	"unicode/utf8"
)

// MarshalCanonical renders the hashed portion of a snapshot as RFC 8785
// canonical JSON:
//
//	{"clock":{"A":2,"B":3},"message_id":"m1"}
//
// Keys are ordered by UTF-16 code units, integers are plain decimal, and
// strings escape only quote, backslash and control characters. This is the
// ONLY serialization used for clock_hash.
func MarshalCanonical(clock Clock, messageID string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"clock":{`)
	for i, k := range clock.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(&buf, k)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatUint(clock[k], 10))
	}
	buf.WriteString(`},"message_id":`)
	writeCanonicalString(&buf, messageID)
	buf.WriteByte('}')
	return buf.Bytes()
}

const hexDigits = "0123456789abcdef"

// writeCanonicalString writes s as a JSON string per RFC 8785.
// HTML characters and U+2028/U+2029 are written literally. Invalid UTF-8
// bytes are written as U+FFFD, which Validate prevents for peer input.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[r>>4])
			buf.WriteByte(hexDigits[r&0xF])
		default:
			buf.WriteRune(r)
		}
		i += size
	}
	buf.WriteByte('"')
}
