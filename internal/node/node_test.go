package node

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronod/internal/config"
	"github.com/roach88/chronod/internal/gateway"
	"github.com/roach88/chronod/internal/httpapi"
	"github.com/roach88/chronod/internal/testutil"
	"github.com/roach88/chronod/internal/transport"
	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/vlc"
	"github.com/roach88/chronod/internal/wire"
)

func testConfig(t *testing.T, id string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Node.ID = id
	cfg.DB.Path = filepath.Join(t.TempDir(), id+".db")
	cfg.Net.InnerP2P = "127.0.0.1:0"
	cfg.Store.RetryInitial = time.Millisecond
	cfg.Store.RetryMax = 5 * time.Millisecond
	return cfg
}

func newTestNode(t *testing.T, cfg config.Config, opts ...Option) *Node {
	t.Helper()
	clock := testutil.NewManualClock(1_000).WithStep(1)
	opts = append([]Option{WithNow(clock.Now)}, opts...)
	n, err := New(context.Background(), cfg, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

// runNode serves n until the test ends.
func runNode(t *testing.T, n *Node) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("node did not stop")
		}
	})
}

func request(t *testing.T, n *Node, env wire.Envelope) wire.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := transport.Request(ctx, n.Addr().String(), wire.MarshalEnvelope(env))
	require.NoError(t, err)
	reply, err := wire.UnmarshalEnvelope(raw)
	require.NoError(t, err)
	return reply
}

func gatewayRead(t *testing.T, n *Node, req wire.GatewayRequest) wire.GatewayResponse {
	t.Helper()
	reply := request(t, n, wire.Envelope{
		Identity: wire.IdentityClient,
		Action:   wire.ActionRead,
		Message: vlc.ApplicationMessage{
			Type: vlc.MessageTypeGateway,
			Data: wire.MarshalGatewayRequest(req),
		},
	})
	require.Equal(t, vlc.MessageTypeGateway, reply.Message.Type)
	resp, err := wire.UnmarshalGatewayResponse(reply.Message.Data)
	require.NoError(t, err)
	return resp
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "A")
	cfg.Node.ID = ""
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestClientWrite_RepliesWithEventTrigger(t *testing.T) {
	n := newTestNode(t, testConfig(t, "A"), WithIDGenerator(trigger.NewFixedGenerator("m1")))
	runNode(t, n)

	reply := request(t, n, wire.Envelope{
		Identity: wire.IdentityClient,
		Action:   wire.ActionWrite,
		Message: vlc.ApplicationMessage{
			Type: vlc.MessageTypeChat,
			Data: []byte("hi"),
			From: "client",
			To:   "A",
		},
	})

	assert.Equal(t, wire.IdentityServer, reply.Identity)
	assert.Equal(t, "A", reply.Message.From)
	assert.Equal(t, "client", reply.Message.To)
	require.Equal(t, vlc.MessageTypeClock, reply.Message.Type)

	trig, err := wire.UnmarshalEventTrigger(reply.Message.Data)
	require.NoError(t, err)
	assert.Equal(t, "m1", trig.ClockInfo.MessageID)
	if diff := cmp.Diff(vlc.Clock{"A": 1}, trig.ClockInfo.Clock); diff != "" {
		t.Errorf("clock (-want +got):\n%s", diff)
	}
	assert.Equal(t, []byte("hi"), trig.Message.Data)
	require.NoError(t, vlc.VerifyHash(trig.ClockInfo))
}

func TestClientWrite_InvalidMessageRefused(t *testing.T) {
	n := newTestNode(t, testConfig(t, "A"))
	runNode(t, n)

	reply := request(t, n, wire.Envelope{
		Identity: wire.IdentityClient,
		Action:   wire.ActionWrite,
		Message:  vlc.ApplicationMessage{ID: "e\u0301", Type: vlc.MessageTypeChat},
	})
	require.Equal(t, vlc.MessageTypeGateway, reply.Message.Type)

	resp, err := wire.UnmarshalGatewayResponse(reply.Message.Data)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, uint32(gateway.CodeInvalid), resp.Code)
	assert.Equal(t, uint64(0), n.Engine().Current().Count)
}

func TestGossip_PeersMerge(t *testing.T) {
	a := newTestNode(t, testConfig(t, "A"), WithIDGenerator(trigger.NewFixedGenerator("a1")))
	b := newTestNode(t, testConfig(t, "B"), WithIDGenerator(trigger.NewFixedGenerator("b1")))
	a.AddPeer(config.Peer{ID: "B", Addr: b.Addr().String()})
	b.AddPeer(config.Peer{ID: "A", Addr: a.Addr().String()})
	runNode(t, a)
	runNode(t, b)

	ctx := context.Background()
	_, err := b.Pipeline().Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return a.Engine().Current().Count == 1 && a.Engine().Snapshot()["B"] == 1
	}, 2*time.Second, 10*time.Millisecond, "A merges B's event")

	ev, err := a.Pipeline().Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
	require.NoError(t, err)
	assert.Equal(t, vlc.Clock{"A": 2, "B": 1}, ev.Info.Clock)

	require.Eventually(t, func() bool {
		return b.Engine().Snapshot()["A"] == 2
	}, 2*time.Second, 10*time.Millisecond, "B merges A's event")

	if diff := cmp.Diff(vlc.Clock{"A": 2, "B": 2}, b.Engine().Snapshot()); diff != "" {
		t.Errorf("B clock (-want +got):\n%s", diff)
	}

	// The merged snapshot on B reuses A's message id and is the latest row
	// for it.
	resp := gatewayRead(t, b, wire.GatewayRequest{
		RequestID: "q1",
		Kind:      uint32(gateway.KindClockInfo),
		Method:    uint32(gateway.MethodByID),
		MessageID: "a1",
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "q1", resp.RequestID)
	info, err := wire.UnmarshalClockInfo(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, "B", info.NodeID)
	assert.Equal(t, vlc.Clock{"A": 2, "B": 2}, info.Clock)

	resp = gatewayRead(t, b, wire.GatewayRequest{Method: uint32(gateway.MethodStatus)})
	require.True(t, resp.Success, resp.Message)
	status, err := wire.UnmarshalStatus(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, wire.Status{ClockInfos: 3, MergeLogs: 1, Messages: 2}, status)
}

func TestGossip_UnknownTypeIgnored(t *testing.T) {
	n := newTestNode(t, testConfig(t, "A"))

	reply := n.HandleEnvelope(context.Background(), n.Addr(), wire.MarshalEnvelope(wire.Envelope{
		Identity: wire.IdentityServer,
		Action:   wire.ActionWrite,
		Message:  vlc.ApplicationMessage{ID: "x", Type: vlc.MessageTypeChat, From: "B"},
	}))
	assert.Nil(t, reply)
	assert.Equal(t, uint64(0), n.Pipeline().Stats().Rejected)
}

func TestGossip_TamperedSnapshotRejected(t *testing.T) {
	n := newTestNode(t, testConfig(t, "A"))

	clock := vlc.Clock{"B": 1}
	info := vlc.ClockInfo{
		Clock:     clock,
		NodeID:    "B",
		ClockHash: vlc.ComputeHash(vlc.Clock{"B": 9}, "b1"),
		MessageID: "b1",
		Count:     1,
	}
	data := wire.MarshalEventTrigger(wire.EventTrigger{
		ClockInfo: info,
		Message:   vlc.ApplicationMessage{ID: "b1", Type: vlc.MessageTypeEvent, From: "B"},
	})
	reply := n.HandleEnvelope(context.Background(), n.Addr(), wire.MarshalEnvelope(wire.Envelope{
		Identity: wire.IdentityServer,
		Action:   wire.ActionWrite,
		Message:  vlc.ApplicationMessage{ID: "b1", Type: vlc.MessageTypeClock, Data: data, From: "B"},
	}))

	assert.Nil(t, reply)
	assert.Equal(t, uint64(1), n.Pipeline().Stats().Rejected)
	assert.Empty(t, n.Engine().Snapshot())
}

func TestHandleEnvelope_GarbageDropped(t *testing.T) {
	n := newTestNode(t, testConfig(t, "A"))
	assert.Nil(t, n.HandleEnvelope(context.Background(), n.Addr(), []byte{0xff, 0xff, 0xff}))
}

func TestRead_WrongMessageTypeRefused(t *testing.T) {
	n := newTestNode(t, testConfig(t, "A"))

	raw := n.HandleEnvelope(context.Background(), n.Addr(), wire.MarshalEnvelope(wire.Envelope{
		Identity: wire.IdentityClient,
		Action:   wire.ActionRead,
		Message:  vlc.ApplicationMessage{Type: vlc.MessageTypeChat},
	}))
	require.NotNil(t, raw)
	reply, err := wire.UnmarshalEnvelope(raw)
	require.NoError(t, err)
	resp, err := wire.UnmarshalGatewayResponse(reply.Message.Data)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, uint32(gateway.CodeInvalid), resp.Code)
}

func TestNew_ResumesFromStore(t *testing.T) {
	cfg := testConfig(t, "A")

	first, err := New(context.Background(), cfg, nil, WithIDGenerator(trigger.NewFixedGenerator("m1", "m2")))
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := first.Pipeline().Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
		require.NoError(t, err)
	}
	want := first.Engine().Current()
	require.NoError(t, first.Close())

	second := newTestNode(t, cfg, WithIDGenerator(trigger.NewFixedGenerator("m3")))
	if diff := cmp.Diff(want, second.Engine().Current()); diff != "" {
		t.Errorf("resumed snapshot (-want +got):\n%s", diff)
	}

	ev, err := second.Pipeline().Emit(ctx, vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ev.Info.Count)
	assert.GreaterOrEqual(t, ev.Info.CreateAt, want.CreateAt)
}

func peerEvent(nodeID, messageID string, clock vlc.Clock) trigger.Event {
	return trigger.Event{
		Info: vlc.ClockInfo{
			Clock:     clock,
			NodeID:    nodeID,
			ClockHash: vlc.ComputeHash(clock, messageID),
			MessageID: messageID,
			Count:     clock[nodeID],
			CreateAt:  500,
		},
		Message: vlc.ApplicationMessage{ID: messageID, Type: vlc.MessageTypeEvent, From: nodeID},
	}
}

func TestNew_ResumesMergeHistory(t *testing.T) {
	cfg := testConfig(t, "A")
	ctx := context.Background()

	first, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	out, err := first.Pipeline().Receive(ctx, peerEvent("B", "b2", vlc.Clock{"B": 2}))
	require.NoError(t, err)
	require.Equal(t, trigger.StateDispatched, out.State)
	require.NoError(t, first.Close())

	second := newTestNode(t, cfg)
	last, ok := second.Engine().LastMerged("B")
	require.True(t, ok)
	assert.Equal(t, uint64(2), last.Count)
	assert.Equal(t, vlc.Clock{"B": 2}, last.Clock)

	out, err = second.Pipeline().Receive(ctx, peerEvent("B", "b1", vlc.Clock{"B": 1}))
	require.NoError(t, err)
	assert.Equal(t, trigger.StateDuplicate, out.State, "older snapshot stays refused after restart")

	logs, err := second.Facade().Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), logs.MergeLogs)
}

func TestHTTP_ServesClock(t *testing.T) {
	cfg := testConfig(t, "A")
	cfg.Net.HTTP = "127.0.0.1:0"
	n := newTestNode(t, cfg, WithIDGenerator(trigger.NewFixedGenerator("m1")))
	require.NotNil(t, n.HTTPAddr())
	runNode(t, n)

	_, err := n.Pipeline().Emit(context.Background(), vlc.ApplicationMessage{Type: vlc.MessageTypeEvent})
	require.NoError(t, err)

	resp, err := http.Get("http://" + n.HTTPAddr().String() + "/v1/clock")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var got httpapi.Response
	require.NoError(t, json.Unmarshal(body, &got))
	require.NotNil(t, got.ClockInfo)
	assert.Equal(t, "m1", got.ClockInfo.MessageID)
}

func TestPublish_SkipsSelfAndJoinsErrors(t *testing.T) {
	n := newTestNode(t, testConfig(t, "A"))
	n.AddPeer(config.Peer{ID: "A", Addr: n.Addr().String()})
	n.AddPeer(config.Peer{ID: "B", Addr: "not-an-address"})

	err := n.Publish(context.Background(), trigger.Event{
		Info:    vlc.ClockInfo{Clock: vlc.Clock{"A": 1}, NodeID: "A", MessageID: "m1", Count: 1},
		Message: vlc.ApplicationMessage{ID: "m1", From: "A"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer B")
	assert.NotContains(t, err.Error(), "peer A")

	n.AddPeer(config.Peer{ID: "B", Addr: "127.0.0.1:1"})
	assert.Len(t, n.Peers(), 2, "AddPeer replaces by id")
}

func TestRun_StopsOnCancel(t *testing.T) {
	n := newTestNode(t, testConfig(t, "A"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
