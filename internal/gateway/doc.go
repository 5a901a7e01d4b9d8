// Package gateway is the read path over persisted causal history.
//
// A request names a record Kind and a Method:
//
//	            by_id   by_cursor   status
//	clock_info    ✓         ✓          ✓
//	merge_log               ✓          ✓
//	message       ✓         ✓          ✓
//
// Status ignores the kind and returns totals for all three. Cursor scans
// are keyset paginated on the store's insertion sequence and capped at the
// configured read maximum.
//
// The Facade serves both the binary wire protocol (Handle, HandleBytes) and
// typed callers such as the HTTP API.
package gateway
