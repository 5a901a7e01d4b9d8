package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_DoesNotMoveByItself(t *testing.T) {
	clock := NewManualClock(1000)
	assert.Equal(t, int64(1000), clock.Now())
	assert.Equal(t, int64(1000), clock.Now())
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock(1000)

	clock.Advance(5)
	assert.Equal(t, int64(1005), clock.Now())

	clock.Advance(10)
	assert.Equal(t, int64(1015), clock.Now())
}

func TestManualClock_WithStep(t *testing.T) {
	clock := NewManualClock(0).WithStep(2)

	assert.Equal(t, int64(0), clock.Now())
	assert.Equal(t, int64(2), clock.Now())
	assert.Equal(t, int64(4), clock.Now())
}

func TestManualClock_SetAndReset(t *testing.T) {
	clock := NewManualClock(500)

	clock.Set(100)
	assert.Equal(t, int64(100), clock.Now())

	clock.Reset()
	assert.Equal(t, int64(500), clock.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(0).WithStep(1)

	const goroutines = 10
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	seen := make(chan int64, goroutines*callsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				seen <- clock.Now()
			}
		}()
	}

	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		assert.False(t, unique[v], "duplicate reading %d", v)
		unique[v] = true
	}
	assert.Len(t, unique, goroutines*callsPerGoroutine)
}
