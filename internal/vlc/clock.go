package vlc

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// MaxCounter is the largest value a clock counter may hold. Counters are
// persisted as signed 64-bit integers, so the usable range stops at MaxInt64.
const MaxCounter uint64 = math.MaxInt64

// Clock maps node identifiers to event counters.
// A Clock is a plain value; synchronization is the owner's responsibility.
type Clock map[string]uint64

// NewClock creates an empty clock.
func NewClock() Clock {
	return make(Clock)
}

// Get returns the counter for nodeID, or 0 if the node is absent.
func (c Clock) Get(nodeID string) uint64 {
	return c[nodeID]
}

// Copy returns a deep copy. Copying a nil clock yields an empty clock.
func (c Clock) Copy() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Equal reports whether both clocks hold the same counters.
// Absent entries and explicit zero entries are considered equal.
func (c Clock) Equal(other Clock) bool {
	return c.Compare(other) == Equal
}

// Ordering is the causal relationship between two clocks.
type Ordering int

const (
	// Equal means both clocks hold identical counters.
	Equal Ordering = iota
	// Before means the receiver happened before the argument.
	Before
	// After means the receiver happened after the argument.
	After
	// Concurrent means neither clock dominates the other.
	Concurrent
)

// String returns the ordering name.
func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	default:
		return "ordering(" + strconv.Itoa(int(o)) + ")"
	}
}

// Compare returns the causal relationship of c relative to other.
func (c Clock) Compare(other Clock) Ordering {
	var less, greater bool
	for k, v := range c {
		o := other[k]
		if v < o {
			less = true
		} else if v > o {
			greater = true
		}
	}
	for k, o := range other {
		if _, ok := c[k]; ok {
			continue
		}
		if o > 0 {
			less = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// Dominates reports whether c is causally at or after other for every node.
func (c Clock) Dominates(other Clock) bool {
	ord := c.Compare(other)
	return ord == After || ord == Equal
}

// SortedKeys returns node identifiers in RFC 8785 order (UTF-16 code units).
// Go's native string order compares UTF-8 bytes, which differs for
// characters outside the Basic Multilingual Plane.
func (c Clock) SortedKeys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// String renders the clock with sorted keys, e.g. {A:2, B:3}.
func (c Clock) String() string {
	if len(c) == 0 {
		return "{}"
	}
	keys := c.SortedKeys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + strconv.FormatUint(c[k], 10)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Join returns the elementwise maximum of a and b. Absent entries count as 0.
// Join is commutative, associative and idempotent, and never mutates its inputs.
func Join(a, b Clock) Clock {
	out := a.Copy()
	for k, v := range b {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}
