package store

import (
	"context"

	"github.com/roach88/chronod/internal/vlc"
)

// AppendClockInfo inserts a clock snapshot.
// Uses ON CONFLICT(clock_hash) DO NOTHING for idempotency - a snapshot
// already stored under the same hash is silently ignored.
func (s *Store) AppendClockInfo(ctx context.Context, info vlc.ClockInfo) error {
	if err := checkCounter("count", info.Count); err != nil {
		return err
	}

	clockJSON, err := marshalClock(info.Clock)
	if err != nil {
		return wrapErr("append clock info", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clock_infos
		(clock_hash, node_id, message_id, clock, event_count, create_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(clock_hash) DO NOTHING
	`,
		info.ClockHash,
		info.NodeID,
		info.MessageID,
		clockJSON,
		int64(info.Count),
		info.CreateAt,
	)
	if err != nil {
		return wrapErr("append clock info", err)
	}

	return nil
}

// AppendMergeLog inserts a merge provenance record.
// Uses ON CONFLICT DO NOTHING for idempotency - the same pair of snapshot
// hashes is recorded once.
//
// Note: Both snapshots the log references should already be stored; the
// store does not enforce this (see FindOrphanedMergeLogs).
func (s *Store) AppendMergeLog(ctx context.Context, log vlc.MergeLog) error {
	if err := checkCounter("start_count", log.StartCount); err != nil {
		return err
	}
	if err := checkCounter("end_count", log.EndCount); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merge_logs
		(from_id, to_id, start_count, end_count, s_clock_hash, e_clock_hash, merge_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		log.FromID,
		log.ToID,
		int64(log.StartCount),
		int64(log.EndCount),
		log.SClockHash,
		log.EClockHash,
		log.MergeAt,
	)
	if err != nil {
		return wrapErr("append merge log", err)
	}

	return nil
}

// AppendMessage inserts an application message.
// Uses ON CONFLICT(message_id) DO NOTHING for idempotency.
func (s *Store) AppendMessage(ctx context.Context, msg vlc.ApplicationMessage) error {
	data := msg.Data
	if data == nil {
		data = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
		(message_id, version, type, public_key, data, signature, from_id, to_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`,
		msg.ID,
		int64(msg.Version),
		int64(msg.Type),
		msg.PublicKey,
		data,
		msg.Signature,
		msg.From,
		msg.To,
	)
	if err != nil {
		return wrapErr("append message", err)
	}

	return nil
}
