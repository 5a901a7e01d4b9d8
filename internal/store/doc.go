// Package store provides SQLite-backed durable storage for chronod causal
// history.
//
// The store is an append-only log with three record kinds:
//   - clock_infos: vector clock snapshots, content-addressed by clock_hash
//   - merge_logs: provenance of every merge, linking two clock_hash values
//   - messages: the application messages snapshots are attached to
//
// # Patterns
//
// Idempotent appends
//   - clock_infos UNIQUE(clock_hash), messages UNIQUE(message_id),
//     merge_logs UNIQUE(s_clock_hash, e_clock_hash)
//   - INSERT ... ON CONFLICT DO NOTHING, so a retried write is harmless
//
// Keyset pagination
//   - Every table has seq INTEGER PRIMARY KEY, assigned in insertion order
//   - Scans use WHERE seq > ? ORDER BY seq ASC LIMIT ?, never OFFSET
//
// Referential integrity by write ordering
//   - No foreign keys between merge_logs and clock_infos; callers write both
//     snapshots before the MergeLog that references them.
//     FindOrphanedMergeLogs reports violations.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Context deadlines surface as ErrTimeout; point lookups that match nothing
// return ErrNotFound.
package store
