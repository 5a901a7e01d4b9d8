package node

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/chronod/internal/store"
	"github.com/roach88/chronod/internal/vlc"
)

// boundedStore applies the configured db timeout to every store call, so a
// stuck database surfaces as store.ErrTimeout instead of blocking a caller.
type boundedStore struct {
	st      *store.Store
	timeout time.Duration
}

func (b boundedStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, b.timeout)
}

func (b boundedStore) AppendClockInfo(ctx context.Context, info vlc.ClockInfo) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.AppendClockInfo(ctx, info)
}

func (b boundedStore) AppendMergeLog(ctx context.Context, log vlc.MergeLog) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.AppendMergeLog(ctx, log)
}

func (b boundedStore) AppendMessage(ctx context.Context, msg vlc.ApplicationMessage) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.AppendMessage(ctx, msg)
}

func (b boundedStore) FindClockInfoByMessageID(ctx context.Context, messageID string) (store.ClockInfoRecord, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.FindClockInfoByMessageID(ctx, messageID)
}

func (b boundedStore) FindMessageByID(ctx context.Context, messageID string) (store.MessageRecord, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.FindMessageByID(ctx, messageID)
}

func (b boundedStore) FindClockInfosAfter(ctx context.Context, cursor int64, limit int) ([]store.ClockInfoRecord, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.FindClockInfosAfter(ctx, cursor, limit)
}

func (b boundedStore) FindMergeLogsAfter(ctx context.Context, cursor int64, limit int) ([]store.MergeLogRecord, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.FindMergeLogsAfter(ctx, cursor, limit)
}

func (b boundedStore) FindMessagesAfter(ctx context.Context, cursor int64, limit int) ([]store.MessageRecord, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.FindMessagesAfter(ctx, cursor, limit)
}

func (b boundedStore) CountClockInfos(ctx context.Context) (uint64, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.CountClockInfos(ctx)
}

func (b boundedStore) CountMergeLogs(ctx context.Context) (uint64, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.CountMergeLogs(ctx)
}

func (b boundedStore) CountMessages(ctx context.Context) (uint64, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.CountMessages(ctx)
}

func (b boundedStore) LatestClockInfo(ctx context.Context, nodeID string) (store.ClockInfoRecord, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.LatestClockInfo(ctx, nodeID)
}

func (b boundedStore) Ping(ctx context.Context) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.Ping(ctx)
}

func (b boundedStore) LatestMergeLogs(ctx context.Context, fromID string) ([]store.MergeLogRecord, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.LatestMergeLogs(ctx, fromID)
}

func (b boundedStore) FindClockInfoByHash(ctx context.Context, hash string) (store.ClockInfoRecord, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.st.FindClockInfoByHash(ctx, hash)
}

// mergedPeers returns the newest snapshot nodeID has merged from each peer.
// A log whose peer snapshot is missing contributes its count alone.
func (b boundedStore) mergedPeers(ctx context.Context, nodeID string) ([]vlc.ClockInfo, error) {
	logs, err := b.LatestMergeLogs(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	peers := make([]vlc.ClockInfo, 0, len(logs))
	for _, l := range logs {
		rec, err := b.FindClockInfoByHash(ctx, l.EClockHash)
		switch {
		case err == nil:
			peers = append(peers, rec.ClockInfo)
		case errors.Is(err, store.ErrNotFound):
			peers = append(peers, vlc.ClockInfo{NodeID: l.ToID, Count: l.EndCount, ClockHash: l.EClockHash})
		default:
			return nil, err
		}
	}
	return peers, nil
}
