package vlc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInfo() ClockInfo {
	return snapshot("B", "m1", Clock{"A": 1, "B": 2}, 10)
}

func TestClockInfo_Validate(t *testing.T) {
	require.NoError(t, validInfo().Validate())

	tests := []struct {
		name   string
		mutate func(*ClockInfo)
		field  string
	}{
		{"missing node id", func(ci *ClockInfo) { ci.NodeID = "" }, "node_id"},
		{"missing message id", func(ci *ClockInfo) { ci.MessageID = "" }, "message_id"},
		{"short hash", func(ci *ClockInfo) { ci.ClockHash = "abc" }, "clock_hash"},
		{"uppercase hash", func(ci *ClockInfo) { ci.ClockHash = strings.ToUpper(ci.ClockHash) }, "clock_hash"},
		{"nil clock", func(ci *ClockInfo) { ci.Clock = nil }, "clock"},
		{"empty clock key", func(ci *ClockInfo) { ci.Clock[""] = 1 }, "clock key"},
		{"counter too large", func(ci *ClockInfo) { ci.Clock["C"] = MaxCounter + 1 }, "clock"},
		{"zero count", func(ci *ClockInfo) { ci.Count = 0 }, "count"},
		{"count mismatch", func(ci *ClockInfo) { ci.Count = 1 }, "count"},
		{"negative create_at", func(ci *ClockInfo) { ci.CreateAt = -1 }, "create_at"},
		{"invalid utf8 node", func(ci *ClockInfo) { ci.NodeID = "\xff" }, "node_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ci := validInfo()
			tt.mutate(&ci)

			err := ci.Validate()
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
			assert.ErrorIs(t, err, ErrMalformedClock)

			var vErr *Error
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Details["field"])
		})
	}
}

func TestError_Format(t *testing.T) {
	err := NewHashMismatchError(validInfo(), "deadbeef")
	assert.Contains(t, err.Error(), "HASH_MISMATCH")
	assert.Contains(t, err.Error(), "node=B")
	assert.Contains(t, err.Error(), "message=m1")

	assert.Equal(t, "MALFORMED_CLOCK: count: missing", NewMalformedError("count", "missing").Error())
	assert.False(t, IsHashMismatch(NewMalformedError("x", "y")))
	assert.NotErrorIs(t, NewMalformedError("x", "y"), ErrHashMismatch)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "chat", MessageTypeChat.String())
	assert.Equal(t, "gateway", MessageTypeGateway.String())
	assert.Equal(t, "type(9)", MessageType(9).String())
}

func TestParseMessageType(t *testing.T) {
	got, err := ParseMessageType("Event")
	require.NoError(t, err)
	assert.Equal(t, MessageTypeEvent, got)

	got, err = ParseMessageType("7")
	require.NoError(t, err)
	assert.Equal(t, MessageType(7), got)

	_, err = ParseMessageType("telegram")
	assert.Error(t, err)
}

func TestApplicationMessage_Validate(t *testing.T) {
	valid := ApplicationMessage{ID: "m1", From: "A", To: "B", Type: MessageTypeChat}
	require.NoError(t, valid.Validate())

	broadcast := valid
	broadcast.To = ""
	require.NoError(t, broadcast.Validate())

	tests := []struct {
		name   string
		mutate func(*ApplicationMessage)
		field  string
	}{
		{"missing id", func(m *ApplicationMessage) { m.ID = "" }, "message_id"},
		{"missing from", func(m *ApplicationMessage) { m.From = "" }, "from"},
		{"non-NFC to", func(m *ApplicationMessage) { m.To = "e\u0301" }, "to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)

			err := m.Validate()
			require.Error(t, err)

			var vErr *Error
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Details["field"])
		})
	}
}
