// Package trigger couples application messages to the vector clock engine.
//
// Every event enters through a Pipeline:
//
//   - Emit handles a locally originated message: advance the clock, persist
//     the snapshot and message, then queue the pair for gossip.
//   - Receive handles a peer-delivered pair: validate, verify the hash,
//     merge, persist, then dispatch the message to its consumer.
//
// Receive walks the state machine
//
//	Received → HashValidated → Merged → Persisted → Dispatched
//
// and ends in Rejected (validation or merge refused, no mutation) or
// Duplicate (the peer snapshot, or a newer one from the same peer, was
// already merged) otherwise.
//
// Store failures are retried with exponential backoff and then returned to
// the caller as a *PersistError. By then the in-memory clock has already
// moved; the gap is logged at ERROR and counted in Stats.StoreFailures.
package trigger
