package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/chronod/internal/vlc"
)

// ClockInfoRecord is a stored snapshot with its insertion sequence.
type ClockInfoRecord struct {
	Seq int64
	vlc.ClockInfo
}

// MergeLogRecord is a stored merge log with its insertion sequence.
type MergeLogRecord struct {
	Seq int64
	vlc.MergeLog
}

// MessageRecord is a stored application message with its insertion sequence.
type MessageRecord struct {
	Seq int64
	vlc.ApplicationMessage
}

const clockInfoColumns = `seq, clock_hash, node_id, message_id, clock, event_count, create_at`

const mergeLogColumns = `seq, from_id, to_id, start_count, end_count, s_clock_hash, e_clock_hash, merge_at`

const messageColumns = `seq, message_id, version, type, public_key, data, signature, from_id, to_id`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// FindClockInfoByMessageID returns the most recent snapshot stored for a
// message id. A merge stores the peer's snapshot and the merged snapshot
// under the same id; the merged one is returned.
//
// Returns ErrNotFound if no snapshot exists.
func (s *Store) FindClockInfoByMessageID(ctx context.Context, messageID string) (ClockInfoRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clockInfoColumns+`
		FROM clock_infos
		WHERE message_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, messageID)
	return scanOneClockInfo(row, "find clock info")
}

// FindClockInfoByHash returns the snapshot with the given clock_hash.
// Returns ErrNotFound if no snapshot exists.
func (s *Store) FindClockInfoByHash(ctx context.Context, hash string) (ClockInfoRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clockInfoColumns+`
		FROM clock_infos
		WHERE clock_hash = ?
	`, hash)
	return scanOneClockInfo(row, "find clock info by hash")
}

// LatestClockInfo returns the snapshot with the highest count for a node,
// which is the state to resume from after a restart.
// Returns ErrNotFound if the node has never stored a snapshot.
func (s *Store) LatestClockInfo(ctx context.Context, nodeID string) (ClockInfoRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clockInfoColumns+`
		FROM clock_infos
		WHERE node_id = ?
		ORDER BY event_count DESC, seq DESC
		LIMIT 1
	`, nodeID)
	return scanOneClockInfo(row, "latest clock info")
}

// FindMessageByID returns the application message with the given id.
// Returns ErrNotFound if no message exists.
func (s *Store) FindMessageByID(ctx context.Context, messageID string) (MessageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE message_id = ?
	`, messageID)

	rec, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MessageRecord{}, ErrNotFound
	}
	if err != nil {
		return MessageRecord{}, wrapErr("find message", err)
	}
	return rec, nil
}

// FindClockInfosAfter returns up to limit snapshots with seq > cursor,
// ordered by seq. Pass the last returned Seq as the next cursor.
//
// Returns empty slice (not nil) if limit <= 0 or no rows remain.
func (s *Store) FindClockInfosAfter(ctx context.Context, cursor int64, limit int) ([]ClockInfoRecord, error) {
	if limit <= 0 {
		return []ClockInfoRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clockInfoColumns+`
		FROM clock_infos
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, cursor, limit)
	if err != nil {
		return nil, wrapErr("query clock infos", err)
	}
	defer rows.Close()

	records := []ClockInfoRecord{}
	for rows.Next() {
		rec, err := scanClockInfo(rows)
		if err != nil {
			return nil, wrapErr("scan clock info", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate clock infos", err)
	}

	return records, nil
}

// FindMergeLogsAfter returns up to limit merge logs with seq > cursor,
// ordered by seq.
//
// Returns empty slice (not nil) if limit <= 0 or no rows remain.
func (s *Store) FindMergeLogsAfter(ctx context.Context, cursor int64, limit int) ([]MergeLogRecord, error) {
	if limit <= 0 {
		return []MergeLogRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mergeLogColumns+`
		FROM merge_logs
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, cursor, limit)
	if err != nil {
		return nil, wrapErr("query merge logs", err)
	}
	defer rows.Close()

	records := []MergeLogRecord{}
	for rows.Next() {
		rec, err := scanMergeLog(rows)
		if err != nil {
			return nil, wrapErr("scan merge log", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate merge logs", err)
	}

	return records, nil
}

// FindMessagesAfter returns up to limit messages with seq > cursor,
// ordered by seq.
//
// Returns empty slice (not nil) if limit <= 0 or no rows remain.
func (s *Store) FindMessagesAfter(ctx context.Context, cursor int64, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		return []MessageRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, cursor, limit)
	if err != nil {
		return nil, wrapErr("query messages", err)
	}
	defer rows.Close()

	records := []MessageRecord{}
	for rows.Next() {
		rec, err := scanMessage(rows)
		if err != nil {
			return nil, wrapErr("scan message", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate messages", err)
	}

	return records, nil
}

// CountClockInfos returns the number of stored snapshots.
func (s *Store) CountClockInfos(ctx context.Context) (uint64, error) {
	return s.count(ctx, "clock_infos")
}

// CountMergeLogs returns the number of stored merge logs.
func (s *Store) CountMergeLogs(ctx context.Context) (uint64, error) {
	return s.count(ctx, "merge_logs")
}

// CountMessages returns the number of stored application messages.
func (s *Store) CountMessages(ctx context.Context) (uint64, error) {
	return s.count(ctx, "messages")
}

// count is only called with the fixed table names above.
func (s *Store) count(ctx context.Context, table string) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, wrapErr("count "+table, err)
	}
	return uint64(n), nil
}

func scanOneClockInfo(row *sql.Row, op string) (ClockInfoRecord, error) {
	rec, err := scanClockInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ClockInfoRecord{}, ErrNotFound
	}
	if err != nil {
		return ClockInfoRecord{}, wrapErr(op, err)
	}
	return rec, nil
}

func scanClockInfo(r rowScanner) (ClockInfoRecord, error) {
	var rec ClockInfoRecord
	var clockJSON string
	var count int64

	if err := r.Scan(
		&rec.Seq,
		&rec.ClockHash,
		&rec.NodeID,
		&rec.MessageID,
		&clockJSON,
		&count,
		&rec.CreateAt,
	); err != nil {
		return ClockInfoRecord{}, err
	}

	clock, err := unmarshalClock(clockJSON)
	if err != nil {
		return ClockInfoRecord{}, err
	}
	rec.Clock = clock
	rec.Count = uint64(count)

	return rec, nil
}

func scanMergeLog(r rowScanner) (MergeLogRecord, error) {
	var rec MergeLogRecord
	var start, end int64

	if err := r.Scan(
		&rec.Seq,
		&rec.FromID,
		&rec.ToID,
		&start,
		&end,
		&rec.SClockHash,
		&rec.EClockHash,
		&rec.MergeAt,
	); err != nil {
		return MergeLogRecord{}, err
	}
	rec.StartCount = uint64(start)
	rec.EndCount = uint64(end)

	return rec, nil
}

func scanMessage(r rowScanner) (MessageRecord, error) {
	var rec MessageRecord
	var version, typ int64

	if err := r.Scan(
		&rec.Seq,
		&rec.ID,
		&version,
		&typ,
		&rec.PublicKey,
		&rec.Data,
		&rec.Signature,
		&rec.From,
		&rec.To,
	); err != nil {
		return MessageRecord{}, err
	}
	rec.Version = uint32(version)
	rec.Type = vlc.MessageType(typ)

	return rec, nil
}
