// Package vlc implements the causal clock engine of a chronod node.
//
// A node keeps one vector clock (VLC) mapping node identifiers to event
// counters. Every causally relevant event produces an immutable ClockInfo
// snapshot; every reconciliation with a peer snapshot additionally produces
// a MergeLog provenance record linking the two input snapshots by hash.
//
// # Invariants
//
//   - Per-key monotonicity: a counter never decreases in any clock derived
//     from another clock.
//   - Local monotonicity: successive snapshots of one Engine have strictly
//     increasing Count values with no gaps.
//   - Hash determinism: ComputeHash is a pure function of (clock, message id)
//     and is byte-identical on every node.
//   - Per-peer provenance: successive MergeLogs from one engine for the same
//     peer have non-decreasing StartCount and EndCount. Older peer snapshots
//     fail with StaleClock.
//   - Overflow of the local counter is reported as ClockOverflow and halts
//     the engine; counters never wrap. A peer claiming the local counter is
//     exhausted is refused as MalformedClock instead.
//
// # Hashing
//
// Snapshot hashes are SHA-256 over a domain-separated RFC 8785 canonical JSON
// rendering of {"clock": {...}, "message_id": "..."}:
//
//	SHA256("chronod/clock/v1" || 0x00 || canonical)
//
// The domain carries a version suffix so the algorithm can be migrated
// network-wide without colliding with older hashes.
//
// # Concurrency
//
// Engine serializes Advance and Merge under a single mutex. Join, MergeInfos
// and ComputeHash are pure and safe to call from any goroutine.
package vlc
