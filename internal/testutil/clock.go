package testutil

import "sync"

// ManualClock is a millisecond time source that only moves when told to.
//
// Pass clock.Now to vlc.WithNow so create_at and merge_at values are
// predictable in assertions.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu    sync.Mutex
	start int64
	ms    int64
	step  int64
}

// NewManualClock creates a clock reading start milliseconds.
//
// The clock does not move on its own; see Advance and WithStep.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{start: start, ms: start}
}

// WithStep makes every Now call advance the clock by step milliseconds
// after reading it. Returns the clock for chaining.
func (c *ManualClock) WithStep(step int64) *ManualClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	return c
}

// Now returns the current reading in milliseconds.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.ms
	c.ms += c.step
	return now
}

// Advance moves the clock forward by d milliseconds.
func (c *ManualClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d
}

// Set moves the clock to ms. Setting an earlier value simulates wall-clock
// skew; the vlc engine must still stamp non-decreasing create_at values.
func (c *ManualClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = ms
}

// Reset returns the clock to its starting reading.
//
// Used for test reuse.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = c.start
}
