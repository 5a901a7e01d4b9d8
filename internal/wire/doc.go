// Package wire implements the binary encoding of chronod envelopes, causal
// snapshots and query-gateway messages.
//
// The encoding is protobuf-compatible (varint and length-delimited fields,
// unknown fields skipped) and is produced with protowire directly, so peers
// built from .proto definitions with the same field numbers interoperate.
//
// Field numbers:
//
//	Envelope        1 identity, 2 action, 3 message
//	Message         1 id, 2 version, 3 type, 4 public_key, 5 data, 6 signature, 7 from, 8 to
//	EventTrigger    1 clock_info, 2 message
//	ClockInfo       1 clock, 2 node_id, 3 clock_hash, 4 message_id, 5 count, 6 create_at
//	Clock           1 entries (map<string, uint64>)
//	MergeLog        1 from_id, 2 to_id, 3 start_count, 4 end_count,
//	                5 s_clock_hash, 6 e_clock_hash, 7 merge_at
//	GatewayRequest  1 request_id, 2 kind, 3 method, 4 message_id, 5 after, 6 limit
//	GatewayResponse 1 request_id, 2 success, 3 code, 4 message, 5 data
//	Status          1 clock_infos, 2 merge_logs, 3 messages
//	*Page           1 entries {1 seq, 2 record}
//
// Map entries and repeated fields are written in a deterministic order.
package wire
