package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/chronod/internal/vlc"
)

// marshalClock serializes a clock for the clock column.
// encoding/json writes map keys sorted, so equal clocks produce equal text.
func marshalClock(c vlc.Clock) (string, error) {
	if c == nil {
		c = vlc.Clock{}
	}
	b, err := json.Marshal(map[string]uint64(c))
	if err != nil {
		return "", fmt.Errorf("marshal clock: %w", err)
	}
	return string(b), nil
}

// unmarshalClock parses the clock column.
func unmarshalClock(s string) (vlc.Clock, error) {
	m := map[string]uint64{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshal clock: %w", err)
	}
	return vlc.Clock(m), nil
}

// checkCounter rejects values SQLite cannot store as signed 64-bit integers.
func checkCounter(field string, v uint64) error {
	if v > vlc.MaxCounter {
		return vlc.NewMalformedError(field, fmt.Sprintf("value %d exceeds %d", v, vlc.MaxCounter))
	}
	return nil
}
