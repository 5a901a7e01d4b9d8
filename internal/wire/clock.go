package wire

import (
	"fmt"

	"github.com/roach88/chronod/internal/vlc"
)

func appendClock(c vlc.Clock) []byte {
	var e encoder
	for _, k := range c.SortedKeys() {
		var entry encoder
		entry.putString(1, k)
		entry.putUint(2, c[k])
		e.putMessage(1, entry.b)
	}
	return e.b
}

func parseClock(b []byte) (vlc.Clock, error) {
	c := vlc.NewClock()
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		body, err := f.asBody()
		if err != nil {
			return err
		}
		var key string
		var val uint64
		err = walk(body, func(ef field) error {
			var err error
			switch ef.num {
			case 1:
				key, err = ef.asString()
			case 2:
				val, err = ef.asUint()
			}
			return err
		})
		if err != nil {
			return err
		}
		if _, dup := c[key]; dup {
			return fmt.Errorf("%w: duplicate clock entry %q", ErrMalformed, key)
		}
		c[key] = val
		return nil
	})
	return c, err
}

// MarshalClockInfo encodes a snapshot.
func MarshalClockInfo(ci vlc.ClockInfo) []byte {
	var e encoder
	if ci.Clock != nil {
		e.putMessage(1, appendClock(ci.Clock))
	}
	e.putString(2, ci.NodeID)
	e.putString(3, ci.ClockHash)
	e.putString(4, ci.MessageID)
	e.putUint(5, ci.Count)
	e.putInt(6, ci.CreateAt)
	return e.b
}

// UnmarshalClockInfo decodes a snapshot. Decoding errors are reported as
// vlc MalformedClock errors; the result is not validated.
func UnmarshalClockInfo(b []byte) (vlc.ClockInfo, error) {
	var ci vlc.ClockInfo
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var body []byte
			if body, err = f.asBody(); err == nil {
				ci.Clock, err = parseClock(body)
			}
		case 2:
			ci.NodeID, err = f.asString()
		case 3:
			ci.ClockHash, err = f.asString()
		case 4:
			ci.MessageID, err = f.asString()
		case 5:
			ci.Count, err = f.asUint()
		case 6:
			ci.CreateAt, err = f.asInt()
		}
		return err
	})
	if err != nil {
		return vlc.ClockInfo{}, vlc.NewMalformedError("clock_info", err.Error())
	}
	return ci, nil
}

// MarshalMergeLog encodes a merge provenance record.
func MarshalMergeLog(ml vlc.MergeLog) []byte {
	var e encoder
	e.putString(1, ml.FromID)
	e.putString(2, ml.ToID)
	e.putUint(3, ml.StartCount)
	e.putUint(4, ml.EndCount)
	e.putString(5, ml.SClockHash)
	e.putString(6, ml.EClockHash)
	e.putInt(7, ml.MergeAt)
	return e.b
}

// UnmarshalMergeLog decodes a merge provenance record.
func UnmarshalMergeLog(b []byte) (vlc.MergeLog, error) {
	var ml vlc.MergeLog
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			ml.FromID, err = f.asString()
		case 2:
			ml.ToID, err = f.asString()
		case 3:
			ml.StartCount, err = f.asUint()
		case 4:
			ml.EndCount, err = f.asUint()
		case 5:
			ml.SClockHash, err = f.asString()
		case 6:
			ml.EClockHash, err = f.asString()
		case 7:
			ml.MergeAt, err = f.asInt()
		}
		return err
	})
	if err != nil {
		return vlc.MergeLog{}, err
	}
	return ml, nil
}
