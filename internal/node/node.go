// Package node assembles a running chronod node: the store, the clock
// engine, the event pipeline, the query facade and the UDP and HTTP
// listeners in front of them.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/chronod/internal/config"
	"github.com/roach88/chronod/internal/gateway"
	"github.com/roach88/chronod/internal/httpapi"
	"github.com/roach88/chronod/internal/store"
	"github.com/roach88/chronod/internal/transport"
	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/vlc"
	"github.com/roach88/chronod/internal/wire"
)

// httpTimeout bounds reads and writes on the HTTP API.
const httpTimeout = 5 * time.Second

// Node is one participant in the causal clock network.
type Node struct {
	id     string
	st     *store.Store
	conn   *transport.Conn
	httpLn net.Listener

	engine   *vlc.Engine
	pipeline *trigger.Pipeline
	facade   *gateway.Facade
	api      *httpapi.Server
	logger   *slog.Logger

	mu    sync.RWMutex
	peers []config.Peer
}

type options struct {
	now      func() int64
	ids      trigger.IDGenerator
	consumer trigger.Consumer
}

// Option customizes a Node.
type Option func(*options)

// WithNow replaces the wall clock used to stamp snapshots.
func WithNow(now func() int64) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the generator for ids of locally emitted events.
func WithIDGenerator(ids trigger.IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

// WithConsumer receives every merged peer message. The default consumer
// logs it.
func WithConsumer(c trigger.Consumer) Option {
	return func(o *options) { o.consumer = c }
}

// New opens the store, restores the last local snapshot and binds the
// listeners named in cfg. Nothing is served until Run.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	peers, err := cfg.PeerList()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node{id: cfg.Node.ID, peers: peers, logger: logger.With("node", cfg.Node.ID)}

	n.st, err = store.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	bs := boundedStore{st: n.st, timeout: cfg.DB.Timeout}
	if err := bs.Ping(ctx); err != nil {
		n.st.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	engineOpts := []vlc.Option{}
	if o.now != nil {
		engineOpts = append(engineOpts, vlc.WithNow(o.now))
	}
	last, err := bs.LatestClockInfo(ctx, n.id)
	switch {
	case err == nil:
		engineOpts = append(engineOpts, vlc.WithResume(last.ClockInfo))
		n.logger.Info("clock resumed", "count", last.Count, "clock_hash", last.ClockHash)
	case errors.Is(err, store.ErrNotFound):
		n.logger.Info("starting from genesis")
	default:
		n.st.Close()
		return nil, fmt.Errorf("resume clock: %w", err)
	}
	merged, err := bs.mergedPeers(ctx, n.id)
	if err != nil {
		n.st.Close()
		return nil, fmt.Errorf("resume merges: %w", err)
	}
	for _, peer := range merged {
		engineOpts = append(engineOpts, vlc.WithMerged(peer))
	}
	if len(merged) > 0 {
		n.logger.Info("merge history resumed", "peers", len(merged))
	}

	n.engine, err = vlc.NewEngine(n.id, engineOpts...)
	if err != nil {
		n.st.Close()
		return nil, err
	}

	pipeOpts := []trigger.PipelineOption{
		trigger.WithDedupeSize(cfg.Node.CacheMsgMaximum),
		trigger.WithRetryPolicy(trigger.RetryPolicy{
			Attempts: cfg.Store.RetryAttempts,
			Initial:  cfg.Store.RetryInitial,
			Max:      cfg.Store.RetryMax,
		}),
		trigger.WithLogger(logger),
	}
	if o.ids != nil {
		pipeOpts = append(pipeOpts, trigger.WithIDGenerator(o.ids))
	}
	if o.consumer == nil {
		o.consumer = trigger.ConsumerFunc(n.deliver)
	}
	pipeOpts = append(pipeOpts, trigger.WithConsumer(o.consumer))

	n.pipeline = trigger.New(n.engine, bs, pipeOpts...)
	n.facade = gateway.NewFacade(bs, cfg.API.ReadMaximum, logger)
	n.api = httpapi.New(n.facade, n.pipeline, logger)

	n.conn, err = transport.Listen(cfg.Net.InnerP2P, logger)
	if err != nil {
		n.st.Close()
		return nil, err
	}
	if cfg.Net.HTTP != "" {
		n.httpLn, err = net.Listen("tcp", cfg.Net.HTTP)
		if err != nil {
			n.conn.Close()
			n.st.Close()
			return nil, fmt.Errorf("listen http %s: %w", cfg.Net.HTTP, err)
		}
	}
	return n, nil
}

// ID returns the local node id.
func (n *Node) ID() string { return n.id }

// Addr returns the bound UDP address.
func (n *Node) Addr() net.Addr { return n.conn.Addr() }

// HTTPAddr returns the bound HTTP address, or nil when HTTP is disabled.
func (n *Node) HTTPAddr() net.Addr {
	if n.httpLn == nil {
		return nil
	}
	return n.httpLn.Addr()
}

// Engine returns the clock engine.
func (n *Node) Engine() *vlc.Engine { return n.engine }

// Pipeline returns the event pipeline.
func (n *Node) Pipeline() *trigger.Pipeline { return n.pipeline }

// Facade returns the query facade.
func (n *Node) Facade() *gateway.Facade { return n.facade }

// Peers returns a copy of the gossip targets.
func (n *Node) Peers() []config.Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]config.Peer, len(n.peers))
	copy(out, n.peers)
	return out
}

// AddPeer adds or replaces a gossip target.
func (n *Node) AddPeer(p config.Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.peers {
		if n.peers[i].ID == p.ID {
			n.peers[i] = p
			return
		}
	}
	n.peers = append(n.peers, p)
}

// Run serves gossip, gateway queries and the HTTP API until ctx is done or
// one of them fails. It returns the first failure, or nil after a clean
// shutdown.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 3)
	running := 2

	go func() {
		errc <- n.conn.Serve(ctx, n.HandleEnvelope)
	}()
	go func() {
		err := n.pipeline.Run(ctx, n)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		errc <- err
	}()

	var srv *http.Server
	if n.httpLn != nil {
		srv = &http.Server{
			Handler:      n.api.Handler(),
			ReadTimeout:  httpTimeout,
			WriteTimeout: httpTimeout,
		}
		running++
		go func() {
			n.logger.Info("http api listening", "addr", n.httpLn.Addr().String())
			err := srv.Serve(n.httpLn)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			errc <- err
		}()
	}

	n.logger.Info("node running", "addr", n.Addr().String(), "peers", len(n.Peers()))

	var first error
	select {
	case <-ctx.Done():
	case first = <-errc:
		running--
	}

	cancel()
	n.pipeline.Stop()
	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), httpTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			n.logger.Warn("http shutdown", "error", err)
		}
		stop()
	}
	for ; running > 0; running-- {
		if err := <-errc; err != nil && first == nil {
			first = err
		}
	}

	n.logger.Info("node stopped", "error", first)
	return first
}

// Close releases the listeners and the store.
func (n *Node) Close() error {
	n.conn.Close()
	if n.httpLn != nil {
		n.httpLn.Close()
	}
	return n.st.Close()
}

// HandleEnvelope routes one inbound datagram.
//
// Gateway reads are answered with a gateway response. Client writes are
// emitted locally and answered with the produced event trigger. Server
// writes are gossip from peers and are never answered. Undecodable input is
// dropped.
func (n *Node) HandleEnvelope(ctx context.Context, from net.Addr, payload []byte) []byte {
	env, err := wire.UnmarshalEnvelope(payload)
	if err != nil {
		n.logger.Warn("envelope dropped", "from", from.String(), "error", err)
		return nil
	}

	switch env.Action {
	case wire.ActionRead:
		return n.handleRead(ctx, env)
	case wire.ActionWrite:
		if env.Identity == wire.IdentityServer {
			n.handleGossip(ctx, from, env)
			return nil
		}
		return n.handleClientWrite(ctx, env)
	default:
		n.logger.Warn("envelope dropped", "from", from.String(), "action", env.Action)
		return nil
	}
}

func (n *Node) handleRead(ctx context.Context, env wire.Envelope) []byte {
	if env.Message.Type != vlc.MessageTypeGateway {
		err := fmt.Errorf("%w: read of message type %s", gateway.ErrInvalid, env.Message.Type)
		return n.reply(env, vlc.MessageTypeGateway, refusal(err))
	}
	return n.reply(env, vlc.MessageTypeGateway, n.facade.HandleBytes(ctx, env.Message.Data))
}

func (n *Node) handleClientWrite(ctx context.Context, env wire.Envelope) []byte {
	ev, err := n.pipeline.Emit(ctx, env.Message)
	if err != nil {
		n.logger.Warn("client write refused", "message_id", env.Message.ID, "error", err)
		return n.reply(env, vlc.MessageTypeGateway, refusal(err))
	}
	return n.reply(env, vlc.MessageTypeClock, wire.MarshalEventTrigger(wire.EventTrigger{
		ClockInfo: ev.Info,
		Message:   ev.Message,
	}))
}

func (n *Node) handleGossip(ctx context.Context, from net.Addr, env wire.Envelope) {
	if env.Message.Type != vlc.MessageTypeClock {
		n.logger.Warn("gossip dropped", "from", from.String(), "type", env.Message.Type.String())
		return
	}
	trig, err := wire.UnmarshalEventTrigger(env.Message.Data)
	if err != nil {
		n.logger.Warn("gossip dropped", "from", from.String(), "error", err)
		return
	}
	out, err := n.pipeline.Receive(ctx, trigger.Event{Info: trig.ClockInfo, Message: trig.Message})
	if err != nil {
		n.logger.Debug("gossip not applied", "from", from.String(), "state", out.State.String(), "error", err)
	}
}

// Publish gossips a local event to every peer. It implements
// trigger.Publisher.
func (n *Node) Publish(ctx context.Context, ev trigger.Event) error {
	data := wire.MarshalEventTrigger(wire.EventTrigger{ClockInfo: ev.Info, Message: ev.Message})

	var errs []error
	for _, p := range n.Peers() {
		if p.ID == n.id {
			continue
		}
		payload := wire.MarshalEnvelope(wire.Envelope{
			Identity: wire.IdentityServer,
			Action:   wire.ActionWrite,
			Message: vlc.ApplicationMessage{
				ID:   ev.Message.ID,
				Type: vlc.MessageTypeClock,
				Data: data,
				From: n.id,
				To:   p.ID,
			},
		})
		if err := n.conn.Send(ctx, p.Addr, payload); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Node) deliver(_ context.Context, ev trigger.Event) error {
	n.logger.Info("message delivered",
		"message_id", ev.Message.ID,
		"from", ev.Message.From,
		"type", ev.Message.Type.String(),
		"count", ev.Info.Count,
	)
	return nil
}

func (n *Node) reply(req wire.Envelope, typ vlc.MessageType, data []byte) []byte {
	return wire.MarshalEnvelope(wire.Envelope{
		Identity: wire.IdentityServer,
		Action:   req.Action,
		Message: vlc.ApplicationMessage{
			ID:   req.Message.ID,
			Type: typ,
			Data: data,
			From: n.id,
			To:   req.Message.From,
		},
	})
}

// refusal encodes err as a failed gateway response.
func refusal(err error) []byte {
	return wire.MarshalGatewayResponse(wire.GatewayResponse{
		Success: false,
		Code:    uint32(gateway.CodeFor(err)),
		Message: err.Error(),
	})
}
