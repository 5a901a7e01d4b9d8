package vlc

import (
	"fmt"
	"sync"
	"time"
)

// Engine owns the current vector clock of one logical node.
//
// Advance and Merge form a single critical section: counter monotonicity is
// an invariant of the whole clock, not of one call. Readers get copies.
// Several logical nodes in one process use independent engines.
type Engine struct {
	mu       sync.RWMutex
	nodeID   string
	current  ClockInfo // latest snapshot; Clock is owned by the engine
	lastTime int64
	halted   bool
	now      func() int64

	// merged holds the last snapshot merged from each peer node.
	merged map[string]ClockInfo
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow overrides the millisecond time source. Used by tests.
func WithNow(now func() int64) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithResume seeds the engine from the last persisted snapshot of this node,
// so a restarted node continues its counter sequence instead of reusing it.
// Snapshots produced by other nodes are ignored.
func WithResume(info ClockInfo) Option {
	return func(e *Engine) {
		if info.NodeID != e.nodeID {
			return
		}
		e.current = cloneInfo(info)
		e.lastTime = info.CreateAt
	}
}

// WithMerged records peer as the latest snapshot already merged from its
// node, so a restarted engine keeps refusing older ones. peer.Clock may be
// nil when only the count is known.
func WithMerged(peer ClockInfo) Option {
	return func(e *Engine) {
		if peer.NodeID == e.nodeID {
			return
		}
		if last, ok := e.merged[peer.NodeID]; ok && last.Count >= peer.Count {
			return
		}
		e.merged[peer.NodeID] = cloneInfo(peer)
	}
}

// NewEngine creates an engine for nodeID starting from the genesis snapshot.
func NewEngine(nodeID string, opts ...Option) (*Engine, error) {
	if err := ValidateNodeID(nodeID); err != nil {
		return nil, err
	}
	e := &Engine{
		nodeID:  nodeID,
		current: Genesis(nodeID),
		now:     func() int64 { return time.Now().UnixMilli() },
		merged:  make(map[string]ClockInfo),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NodeID returns the identity of the node this engine advances.
func (e *Engine) NodeID() string {
	return e.nodeID
}

// Advance increments the local counter, binds the new clock to messageID and
// returns the resulting snapshot.
//
// Concurrent calls never return the same Count. After a ClockOverflow the
// engine is halted and every later Advance or Merge fails.
func (e *Engine) Advance(messageID string) (ClockInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	own := e.current.Clock[e.nodeID]
	if e.halted || own >= MaxCounter {
		e.halted = true
		return ClockInfo{}, NewOverflowError(e.nodeID, own)
	}

	clock := e.current.Clock.Copy()
	clock[e.nodeID] = own + 1

	e.current = ClockInfo{
		Clock:     clock,
		NodeID:    e.nodeID,
		ClockHash: ComputeHash(clock, messageID),
		MessageID: messageID,
		Count:     own + 1,
		CreateAt:  e.stamp(),
	}
	return cloneInfo(e.current), nil
}

// Merge reconciles peer with the current local snapshot and returns the new
// local snapshot and the MergeLog describing the reconciliation.
//
// peer must have passed Validate and VerifyHash. Counts in successive
// MergeLogs for one peer never decrease: a snapshot whose Count is at or
// below the last one merged from the same node fails with StaleClock, and
// one that counts higher but no longer dominates it fails with
// MalformedClock. Neither touches the clock.
//
// Only overflow of the local counter halts the engine. A peer claiming the
// local counter is at MaxCounter is rejected as MalformedClock.
func (e *Engine) Merge(peer ClockInfo, messageID string) (ClockInfo, MergeLog, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		return ClockInfo{}, MergeLog{}, NewOverflowError(e.nodeID, e.current.Count)
	}
	if peer.NodeID == e.nodeID {
		err := NewMalformedError("node_id", "snapshot of the local node")
		err.NodeID = peer.NodeID
		err.MessageID = peer.MessageID
		return ClockInfo{}, MergeLog{}, err
	}
	if last, ok := e.merged[peer.NodeID]; ok {
		if peer.Count <= last.Count {
			return ClockInfo{}, MergeLog{}, NewStaleError(peer, last.Count)
		}
		if !peer.Clock.Dominates(last.Clock) {
			err := NewMalformedError("clock", fmt.Sprintf("regresses below merged snapshot %s", last.ClockHash))
			err.NodeID = peer.NodeID
			err.MessageID = peer.MessageID
			return ClockInfo{}, MergeLog{}, err
		}
	}

	merged, log, err := MergeInfos(e.current, peer, messageID, e.stamp())
	if err != nil {
		if IsOverflow(err) {
			e.halted = true
		}
		return ClockInfo{}, MergeLog{}, err
	}

	e.current = merged
	e.merged[peer.NodeID] = cloneInfo(peer)
	return cloneInfo(merged), log, nil
}

// LastMerged returns the latest snapshot merged from peerID.
func (e *Engine) LastMerged(peerID string) (ClockInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	last, ok := e.merged[peerID]
	if !ok {
		return ClockInfo{}, false
	}
	return cloneInfo(last), true
}

// Current returns a copy of the latest snapshot.
func (e *Engine) Current() ClockInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneInfo(e.current)
}

// Snapshot returns a copy of the current clock.
func (e *Engine) Snapshot() Clock {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current.Clock.Copy()
}

// Halted reports whether the engine stopped after a counter overflow.
func (e *Engine) Halted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

// stamp returns a timestamp that never goes backwards for this engine.
// Caller must hold e.mu.
func (e *Engine) stamp() int64 {
	t := e.now()
	if t < e.lastTime {
		t = e.lastTime
	}
	e.lastTime = t
	return t
}

func cloneInfo(info ClockInfo) ClockInfo {
	info.Clock = info.Clock.Copy()
	return info
}
