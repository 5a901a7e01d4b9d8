package trigger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronod/internal/store"
	"github.com/roach88/chronod/internal/testutil"
	"github.com/roach88/chronod/internal/vlc"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestPipeline(t *testing.T, nodeID string, st Store, opts ...PipelineOption) *Pipeline {
	t.Helper()
	clock := testutil.NewManualClock(1_000).WithStep(1)
	engine, err := vlc.NewEngine(nodeID, vlc.WithNow(clock.Now))
	require.NoError(t, err)

	p := New(engine, st, opts...)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func peerEvent(nodeID, messageID string, clock vlc.Clock) Event {
	return Event{
		Info: vlc.ClockInfo{
			Clock:     clock,
			NodeID:    nodeID,
			ClockHash: vlc.ComputeHash(clock, messageID),
			MessageID: messageID,
			Count:     clock[nodeID],
			CreateAt:  500,
		},
		Message: vlc.ApplicationMessage{
			ID:   messageID,
			Type: vlc.MessageTypeChat,
			Data: []byte("hello"),
			From: nodeID,
			To:   "A",
		},
	}
}

// flakyStore fails the first failures calls of every append.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    []string
}

func (f *flakyStore) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return &store.Error{Op: op, Err: errors.New("disk I/O error")}
	}
	return nil
}

func (f *flakyStore) AppendClockInfo(context.Context, vlc.ClockInfo) error {
	return f.fail("clock_info")
}

func (f *flakyStore) AppendMergeLog(context.Context, vlc.MergeLog) error {
	return f.fail("merge_log")
}

func (f *flakyStore) AppendMessage(context.Context, vlc.ApplicationMessage) error {
	return f.fail("message")
}

func TestEmit_FirstEvent(t *testing.T) {
	st := openTestStore(t)
	p := newTestPipeline(t, "A", st, WithIDGenerator(NewFixedGenerator("m1")))
	ctx := context.Background()

	ev, err := p.Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent, Data: []byte("x"), To: "B"})
	require.NoError(t, err)

	assert.Equal(t, "m1", ev.Message.ID)
	assert.Equal(t, "A", ev.Message.From)
	assert.Equal(t, uint64(1), ev.Info.Count)
	if diff := cmp.Diff(vlc.Clock{"A": 1}, ev.Info.Clock); diff != "" {
		t.Errorf("clock mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "735aa1d58114854622e99086a0fb8a81ef4488db73c692418fe03e4845c76e74", ev.Info.ClockHash)

	stored, err := st.FindClockInfoByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, ev.Info.ClockHash, stored.ClockHash)

	msg, err := st.FindMessageByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), msg.Data)

	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, uint64(1), p.Stats().Emitted)
}

func TestEmit_CountsStrictlyIncrease(t *testing.T) {
	p := newTestPipeline(t, "A", openTestStore(t), WithIDGenerator(testutil.NewSequenceIDGenerator("m")))
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		ev, err := p.Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
		require.NoError(t, err)
		assert.Equal(t, last+1, ev.Info.Count)
		assert.GreaterOrEqual(t, ev.Info.CreateAt, int64(1_000))
		last = ev.Info.Count
	}
}

func TestEmit_RejectsInvalidMessage(t *testing.T) {
	p := newTestPipeline(t, "A", openTestStore(t))

	_, err := p.Emit(context.Background(), vlc.ApplicationMessage{ID: "e\u0301"})
	require.Error(t, err)
	assert.True(t, vlc.IsMalformed(err))
	assert.Equal(t, uint64(0), p.Engine().Current().Count, "clock must not advance")
}

func TestReceive_MergesPeerSnapshot(t *testing.T) {
	st := openTestStore(t)
	var consumed []Event
	p := newTestPipeline(t, "A", st,
		WithIDGenerator(NewFixedGenerator("a1", "a2")),
		WithConsumer(ConsumerFunc(func(_ context.Context, ev Event) error {
			consumed = append(consumed, ev)
			return nil
		})),
	)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
		require.NoError(t, err)
	}
	local := p.Engine().Current()

	peer := peerEvent("B", "m2", vlc.Clock{"B": 3})
	out, err := p.Receive(ctx, peer)
	require.NoError(t, err)

	assert.Equal(t, StateDispatched, out.State)
	if diff := cmp.Diff(vlc.Clock{"A": 3, "B": 3}, out.Info.Clock); diff != "" {
		t.Errorf("merged clock mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "m2", out.Info.MessageID, "merged snapshot reuses the triggering message id")

	require.NotNil(t, out.Log)
	assert.Equal(t, uint64(2), out.Log.StartCount)
	assert.Equal(t, uint64(3), out.Log.EndCount)
	assert.Equal(t, local.ClockHash, out.Log.SClockHash)
	assert.Equal(t, peer.Info.ClockHash, out.Log.EClockHash)

	require.Len(t, consumed, 1)
	assert.Equal(t, "m2", consumed[0].Message.ID)
	assert.Equal(t, out.Info.ClockHash, consumed[0].Info.ClockHash)

	infos, err := st.CountClockInfos(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), infos, "two emitted, peer and merged")

	logs, err := st.CountMergeLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), logs)

	orphans, err := st.FindOrphanedMergeLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	latest, err := st.FindClockInfoByMessageID(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, out.Info.ClockHash, latest.ClockHash)

	assert.Equal(t, 2, p.Pending(), "merges are not gossiped")
	assert.Equal(t, uint64(1), p.Stats().Merged)
}

func TestReceive_HashMismatchRejected(t *testing.T) {
	st := openTestStore(t)
	p := newTestPipeline(t, "A", st)
	ctx := context.Background()
	before := p.Engine().Current()

	ev := peerEvent("B", "m2", vlc.Clock{"B": 3})
	ev.Info.Clock = vlc.Clock{"B": 4}
	ev.Info.Count = 4

	out, err := p.Receive(ctx, ev)
	require.Error(t, err)
	assert.True(t, vlc.IsHashMismatch(err))
	assert.Equal(t, StateRejected, out.State)

	assert.Equal(t, before, p.Engine().Current(), "local clock must not change")
	assert.Equal(t, uint64(1), p.Stats().Rejected)

	n, err := st.CountClockInfos(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReceive_MalformedRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Event)
		is     func(error) bool
	}{
		{
			name:   "missing node id",
			mutate: func(ev *Event) { ev.Info.NodeID = "" },
			is:     vlc.IsMalformed,
		},
		{
			name:   "count disagrees with clock",
			mutate: func(ev *Event) { ev.Info.Count = 7 },
			is:     vlc.IsMalformed,
		},
		{
			name:   "message id mismatch",
			mutate: func(ev *Event) { ev.Message.ID = "other" },
			is:     func(err error) bool { return errors.Is(err, ErrMessageMismatch) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, "A", openTestStore(t))
			ev := peerEvent("B", "m2", vlc.Clock{"B": 3})
			tt.mutate(&ev)

			out, err := p.Receive(context.Background(), ev)
			require.Error(t, err)
			assert.True(t, tt.is(err), "unexpected error: %v", err)
			assert.Equal(t, StateRejected, out.State)
			assert.Zero(t, p.Engine().Current().Count)
		})
	}
}

func TestReceive_DuplicateDelivery(t *testing.T) {
	st := openTestStore(t)
	p := newTestPipeline(t, "A", st)
	ctx := context.Background()

	peer := peerEvent("B", "m2", vlc.Clock{"B": 3})

	first, err := p.Receive(ctx, peer)
	require.NoError(t, err)
	second, err := p.Receive(ctx, peer)
	require.NoError(t, err)

	assert.Equal(t, StateDuplicate, second.State)
	if diff := cmp.Diff(first.Info.Clock, second.Info.Clock); diff != "" {
		t.Errorf("duplicate delivery changed the clock (-first +second):\n%s", diff)
	}
	assert.Equal(t, uint64(3), second.Info.Clock.Get("B"))

	logs, err := st.CountMergeLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), logs)
	assert.Equal(t, uint64(1), p.Stats().Duplicates)
}

func TestReceive_ReorderedDeliveryKeepsMergeLogsMonotonic(t *testing.T) {
	st := openTestStore(t)
	p := newTestPipeline(t, "A", st)
	ctx := context.Background()

	b1 := peerEvent("B", "b1", vlc.Clock{"B": 1})
	b2 := peerEvent("B", "b2", vlc.Clock{"B": 2})
	b3 := peerEvent("B", "b3", vlc.Clock{"B": 3})

	out, err := p.Receive(ctx, b2)
	require.NoError(t, err)
	assert.Equal(t, StateDispatched, out.State)
	after := p.Engine().Current()

	out, err = p.Receive(ctx, b1)
	require.NoError(t, err)
	assert.Equal(t, StateDuplicate, out.State)
	assert.Equal(t, after, out.Info, "stale snapshot leaves the clock alone")

	out, err = p.Receive(ctx, b3)
	require.NoError(t, err)
	assert.Equal(t, StateDispatched, out.State)

	logs, err := st.FindMergeLogsAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for i := 1; i < len(logs); i++ {
		assert.Equal(t, logs[i-1].ToID, logs[i].ToID)
		assert.LessOrEqual(t, logs[i-1].StartCount, logs[i].StartCount)
		assert.LessOrEqual(t, logs[i-1].EndCount, logs[i].EndCount)
	}

	_, err = st.FindMessageByID(ctx, "b1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, uint64(1), p.Stats().Duplicates)
	assert.Equal(t, uint64(2), p.Stats().Merged)
}

func TestReceive_PeerClaimingMaxCounterRejected(t *testing.T) {
	st := openTestStore(t)
	p := newTestPipeline(t, "A", st, WithIDGenerator(NewFixedGenerator("a1", "a2")))
	ctx := context.Background()

	_, err := p.Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
	require.NoError(t, err)
	before := p.Engine().Current()

	out, err := p.Receive(ctx, peerEvent("B", "b1", vlc.Clock{"A": vlc.MaxCounter, "B": 1}))
	require.Error(t, err)
	assert.True(t, vlc.IsMalformed(err), "unexpected error: %v", err)
	assert.Equal(t, StateRejected, out.State)
	assert.True(t, out.State.Terminal())
	assert.Equal(t, before, p.Engine().Current())
	assert.False(t, p.Engine().Halted())

	ev, err := p.Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
	require.NoError(t, err, "local events still advance")
	assert.Equal(t, uint64(2), ev.Info.Count)
}

func TestReceive_OwnSnapshotRejected(t *testing.T) {
	p := newTestPipeline(t, "A", openTestStore(t))

	out, err := p.Receive(context.Background(), peerEvent("A", "a9", vlc.Clock{"A": 9}))
	require.Error(t, err)
	assert.True(t, vlc.IsMalformed(err))
	assert.Equal(t, StateRejected, out.State)
	assert.Zero(t, p.Engine().Current().Count)
}

func TestReceive_RetriesTransientStoreFailure(t *testing.T) {
	fs := &flakyStore{failures: 2}
	p := newTestPipeline(t, "A", fs, WithRetryPolicy(RetryPolicy{Attempts: 3, Initial: time.Millisecond}))

	out, err := p.Receive(context.Background(), peerEvent("B", "m2", vlc.Clock{"B": 3}))
	require.NoError(t, err)
	assert.Equal(t, StateDispatched, out.State)

	// two failed tries then success, followed by the remaining writes in order
	want := []string{"clock_info", "clock_info", "clock_info", "clock_info", "merge_log", "message"}
	assert.Equal(t, want, fs.calls)
	assert.Zero(t, p.Stats().StoreFailures)
}

func TestReceive_StoreFailureSurfaced(t *testing.T) {
	fs := &flakyStore{failures: -1}
	p := newTestPipeline(t, "A", fs, WithRetryPolicy(RetryPolicy{Attempts: 3, Initial: time.Millisecond}))

	out, err := p.Receive(context.Background(), peerEvent("B", "m2", vlc.Clock{"B": 3}))
	require.Error(t, err)

	var pe *PersistError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append peer clock info", pe.Op)
	assert.Equal(t, 3, pe.Attempts)
	assert.Equal(t, "m2", pe.MessageID)
	assert.True(t, store.IsStoreError(err))

	// The merge already happened in memory.
	assert.Equal(t, StateMerged, out.State)
	assert.Equal(t, uint64(1), p.Engine().Current().Count)
	assert.Equal(t, uint64(1), p.Stats().StoreFailures)
}

func TestEmit_StoreFailureNotGossiped(t *testing.T) {
	fs := &flakyStore{failures: -1}
	p := newTestPipeline(t, "A", fs, WithRetryPolicy(RetryPolicy{Attempts: 2, Initial: time.Millisecond}))

	ev, err := p.Emit(context.Background(), vlc.ApplicationMessage{ID: "m1", Type: vlc.MessageTypeEvent})
	require.Error(t, err)
	assert.True(t, IsPersistError(err))
	assert.Equal(t, uint64(1), ev.Info.Count)
	assert.Zero(t, p.Pending())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		ids = append(ids, ev.Message.ID)
	}
	return ids
}

func TestRun_PublishesInOrderUntilStopped(t *testing.T) {
	p := newTestPipeline(t, "A", openTestStore(t), WithIDGenerator(NewFixedGenerator("m1", "m2")))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
		require.NoError(t, err)
	}

	pub := &recordingPublisher{}
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, pub) }()

	require.Eventually(t, func() bool { return len(pub.ids()) == 2 }, time.Second, 5*time.Millisecond)
	p.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, []string{"m1", "m2"}, pub.ids())

	_, err := p.Emit(ctx, vlc.ApplicationMessage{ID: "m3", Type: vlc.MessageTypeEvent})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	p := newTestPipeline(t, "A", openTestStore(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, &recordingPublisher{}) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "hash_validated", StateHashValidated.String())
	assert.Equal(t, "duplicate", StateDuplicate.String())
	assert.True(t, StateRejected.Terminal())
	assert.False(t, StateMerged.Terminal())
}
