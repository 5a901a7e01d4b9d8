package store

import (
	"context"

	"github.com/roach88/chronod/internal/vlc"
)

// FindOrphanedMergeLogs returns merge logs that reference a clock_hash with
// no stored snapshot. The genesis hash is exempt: it names the empty clock
// every node starts from and is never stored.
//
// Returns empty slice (not nil) when every reference resolves.
func (s *Store) FindOrphanedMergeLogs(ctx context.Context) ([]MergeLogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mergeLogColumns+`
		FROM merge_logs m
		WHERE (m.s_clock_hash != ? AND NOT EXISTS (
		           SELECT 1 FROM clock_infos c WHERE c.clock_hash = m.s_clock_hash))
		   OR (m.e_clock_hash != ? AND NOT EXISTS (
		           SELECT 1 FROM clock_infos c WHERE c.clock_hash = m.e_clock_hash))
		ORDER BY m.seq ASC
	`, vlc.GenesisHash, vlc.GenesisHash)
	if err != nil {
		return nil, wrapErr("query orphaned merge logs", err)
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

// LatestMergeLogs returns, for every peer fromID has merged from, the merge
// log with the highest end_count, ordered by to_id.
//
// Returns empty slice (not nil) when fromID has never merged.
func (s *Store) LatestMergeLogs(ctx context.Context, fromID string) ([]MergeLogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mergeLogColumns+`
		FROM merge_logs m
		WHERE m.from_id = ?
		  AND m.seq = (
		      SELECT l.seq FROM merge_logs l
		      WHERE l.from_id = m.from_id AND l.to_id = m.to_id
		      ORDER BY l.end_count DESC, l.seq DESC
		      LIMIT 1)
		ORDER BY m.to_id ASC
	`, fromID)
	if err != nil {
		return nil, wrapErr("query latest merge logs", err)
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
