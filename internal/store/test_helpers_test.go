package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/chronod/internal/vlc"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestClockInfo creates a hashed snapshot whose count matches the
// node's own entry.
func createTestClockInfo(nodeID, messageID string, clock vlc.Clock, createAt int64) vlc.ClockInfo {
	return vlc.ClockInfo{
		Clock:     clock,
		NodeID:    nodeID,
		ClockHash: vlc.ComputeHash(clock, messageID),
		MessageID: messageID,
		Count:     clock[nodeID],
		CreateAt:  createAt,
	}
}

// createTestMessage creates an event message with minimal required fields.
func createTestMessage(id, from, to string) vlc.ApplicationMessage {
	return vlc.ApplicationMessage{
		ID:   id,
		Type: vlc.MessageTypeEvent,
		Data: []byte("payload-" + id),
		From: from,
		To:   to,
	}
}
