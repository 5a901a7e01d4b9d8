package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/chronod/internal/vlc"
)

// Store is the durable append contract the pipeline writes through.
// *store.Store satisfies it.
type Store interface {
	AppendClockInfo(ctx context.Context, info vlc.ClockInfo) error
	AppendMergeLog(ctx context.Context, log vlc.MergeLog) error
	AppendMessage(ctx context.Context, msg vlc.ApplicationMessage) error
}

// Publisher gossips a persisted local event to peers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Consumer receives peer messages once their causal metadata is merged
// and persisted.
type Consumer interface {
	Consume(ctx context.Context, ev Event) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, ev Event) error

func (f ConsumerFunc) Consume(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// DefaultDedupeSize is the number of merged peer hashes remembered when no
// size is configured.
const DefaultDedupeSize = 10000

// Pipeline is the single entry point coupling application messages to a
// vlc.Engine.
//
// Thread-safety: Emit and Receive may be called concurrently. Ordering of
// clock updates is decided by the engine's critical section.
type Pipeline struct {
	engine   *vlc.Engine
	store    Store
	ids      IDGenerator
	consumer Consumer
	retry    RetryPolicy
	seen     *seenSet
	outbox   *outbox
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	emitted       atomic.Uint64
	merged        atomic.Uint64
	rejected      atomic.Uint64
	duplicates    atomic.Uint64
	storeFailures atomic.Uint64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithIDGenerator sets the generator used for messages emitted without an id.
func WithIDGenerator(ids IDGenerator) PipelineOption {
	return func(p *Pipeline) {
		p.ids = ids
	}
}

// WithConsumer sets where accepted peer messages are dispatched.
func WithConsumer(c Consumer) PipelineOption {
	return func(p *Pipeline) {
		p.consumer = c
	}
}

// WithRetryPolicy sets the persistence retry policy.
func WithRetryPolicy(policy RetryPolicy) PipelineOption {
	return func(p *Pipeline) {
		p.retry = policy.normalized()
	}
}

// WithDedupeSize sets how many merged peer hashes are remembered.
func WithDedupeSize(n int) PipelineOption {
	return func(p *Pipeline) {
		p.seen = newSeenSet(n)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline for engine writing to st.
func New(engine *vlc.Engine, st Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		engine: engine,
		store:  st,
		ids:    UUIDv7Generator{},
		retry:  DefaultRetryPolicy,
		seen:   newSeenSet(DefaultDedupeSize),
		outbox: newOutbox(),
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("node", engine.NodeID())
	return p
}

// Engine returns the engine the pipeline advances.
func (p *Pipeline) Engine() *vlc.Engine {
	return p.engine
}

// Emit records a locally originated message.
//
// An empty msg.ID is replaced by a generated id and an empty msg.From by
// the local node id. The returned Event carries the new snapshot. The event
// is queued for gossip only after both records are persisted; a
// *PersistError is returned otherwise, alongside the Event.
func (p *Pipeline) Emit(ctx context.Context, msg vlc.ApplicationMessage) (Event, error) {
	if msg.ID == "" {
		msg.ID = p.ids.Generate()
	}
	if msg.From == "" {
		msg.From = p.engine.NodeID()
	}
	if err := msg.Validate(); err != nil {
		return Event{}, err
	}

	info, err := p.engine.Advance(msg.ID)
	if err != nil {
		if vlc.IsOverflow(err) {
			p.logger.Error("clock overflow, node halted", "message_id", msg.ID, "error", err)
		}
		return Event{}, err
	}

	ev := Event{Info: info, Message: msg}
	p.emitted.Add(1)

	if err := p.persist(ctx, msg.ID,
		write{"append clock info", func(ctx context.Context) error { return p.store.AppendClockInfo(ctx, info) }},
		write{"append message", func(ctx context.Context) error { return p.store.AppendMessage(ctx, msg) }},
	); err != nil {
		return ev, err
	}

	if !p.outbox.Enqueue(ev) {
		return ev, ErrClosed
	}

	p.logger.Debug("event emitted", "message_id", msg.ID, "count", info.Count, "clock_hash", info.ClockHash)
	return ev, nil
}

// Receive folds a peer-delivered event into the local clock.
//
// Validation failures end in StateRejected with the local clock untouched,
// as does a snapshot the engine refuses to merge. A snapshot whose hash was
// already merged, or that is no newer than the last one merged from the same
// peer, ends in StateDuplicate. On success the merged snapshot and MergeLog
// are persisted and the message is dispatched to the consumer.
func (p *Pipeline) Receive(ctx context.Context, ev Event) (Outcome, error) {
	out := Outcome{State: StateReceived}

	if err := p.validate(ev); err != nil {
		return p.reject(ev, err)
	}
	if err := vlc.VerifyHash(ev.Info); err != nil {
		return p.reject(ev, err)
	}
	out.State = StateHashValidated

	if p.seen.Contains(ev.Info.ClockHash) {
		return p.duplicate(ev, "duplicate delivery ignored")
	}

	merged, log, err := p.engine.Merge(ev.Info, ev.Info.MessageID)
	switch {
	case err == nil:
	case vlc.IsStale(err):
		p.seen.Add(ev.Info.ClockHash)
		return p.duplicate(ev, "stale delivery ignored")
	case vlc.IsOverflow(err):
		p.logger.Error("clock overflow, node halted", "message_id", ev.Info.MessageID, "error", err)
		return p.reject(ev, err)
	default:
		return p.reject(ev, err)
	}
	p.seen.Add(ev.Info.ClockHash)
	out.State = StateMerged
	out.Info = merged
	out.Log = &log
	p.merged.Add(1)

	// Snapshots precede the MergeLog that references them.
	if err := p.persist(ctx, ev.Info.MessageID,
		write{"append peer clock info", func(ctx context.Context) error { return p.store.AppendClockInfo(ctx, ev.Info) }},
		write{"append clock info", func(ctx context.Context) error { return p.store.AppendClockInfo(ctx, merged) }},
		write{"append merge log", func(ctx context.Context) error { return p.store.AppendMergeLog(ctx, log) }},
		write{"append message", func(ctx context.Context) error { return p.store.AppendMessage(ctx, ev.Message) }},
	); err != nil {
		return out, err
	}
	out.State = StatePersisted

	if p.consumer != nil {
		if err := p.consumer.Consume(ctx, Event{Info: merged, Message: ev.Message}); err != nil {
			return out, fmt.Errorf("dispatch message %s: %w", ev.Message.ID, err)
		}
	}
	out.State = StateDispatched

	p.logger.Debug("peer event merged",
		"message_id", ev.Info.MessageID,
		"peer", ev.Info.NodeID,
		"count", merged.Count,
		"clock_hash", merged.ClockHash,
	)
	return out, nil
}

// Run gossips queued local events through pub until ctx is done or the
// pipeline is stopped and drained. Publish failures are logged and the event
// dropped; peers catch up through later events carrying a dominating clock.
func (p *Pipeline) Run(ctx context.Context, pub Publisher) error {
	p.logger.Info("gossip loop starting")

	for {
		ev, ok := p.outbox.TryDequeue()
		if ok {
			if err := pub.Publish(ctx, ev); err != nil {
				p.logger.Warn("gossip failed", "message_id", ev.Message.ID, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("gossip loop stopping: context cancelled")
			p.outbox.Close()
			return ctx.Err()

		case <-p.outbox.Wait():
			// The signal channel is closed by Stop, so this fires
			// immediately once the outbox is closed.
			if p.outbox.Len() == 0 && p.outbox.Closed() {
				p.logger.Info("gossip loop stopping: outbox closed")
				return nil
			}
		}
	}
}

// Stop closes the outbox. Queued events are still drained by Run.
func (p *Pipeline) Stop() {
	p.outbox.Close()
}

// Pending returns the number of events waiting to be gossiped.
func (p *Pipeline) Pending() int {
	return p.outbox.Len()
}

// Stats returns a snapshot of the outcome counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Emitted:       p.emitted.Load(),
		Merged:        p.merged.Load(),
		Rejected:      p.rejected.Load(),
		Duplicates:    p.duplicates.Load(),
		StoreFailures: p.storeFailures.Load(),
	}
}

func (p *Pipeline) validate(ev Event) error {
	if err := ev.Info.Validate(); err != nil {
		return err
	}
	if err := ev.Message.Validate(); err != nil {
		return err
	}
	if ev.Message.ID != ev.Info.MessageID {
		return fmt.Errorf("%w: message %q, clock info %q", ErrMessageMismatch, ev.Message.ID, ev.Info.MessageID)
	}
	return nil
}

func (p *Pipeline) duplicate(ev Event, msg string) (Outcome, error) {
	p.duplicates.Add(1)
	p.logger.Debug(msg, "message_id", ev.Info.MessageID, "peer", ev.Info.NodeID, "clock_hash", ev.Info.ClockHash)
	return Outcome{State: StateDuplicate, Info: p.engine.Current()}, nil
}

func (p *Pipeline) reject(ev Event, err error) (Outcome, error) {
	p.rejected.Add(1)
	p.logger.Warn("peer event rejected",
		"message_id", ev.Info.MessageID,
		"peer", ev.Info.NodeID,
		"clock_hash", ev.Info.ClockHash,
		"error", err,
	)
	return Outcome{State: StateRejected}, err
}

type write struct {
	op string
	fn func(ctx context.Context) error
}

// persist runs writes in order, retrying each per the retry policy. The
// first write that exhausts its retries stops the sequence.
func (p *Pipeline) persist(ctx context.Context, messageID string, writes ...write) error {
	for _, w := range writes {
		if pe := p.retryWrite(ctx, w); pe != nil {
			pe.MessageID = messageID
			p.storeFailures.Add(1)
			p.logger.Error("durability gap: in-memory clock ahead of store",
				"message_id", messageID,
				"op", pe.Op,
				"attempts", pe.Attempts,
				"error", pe.Err,
			)
			return pe
		}
	}
	return nil
}

func (p *Pipeline) retryWrite(ctx context.Context, w write) *PersistError {
	var err error
	attempt := 0
	for attempt < p.retry.Attempts {
		attempt++
		if err = w.fn(ctx); err == nil {
			return nil
		}
		if !retryable(ctx, err) || attempt == p.retry.Attempts {
			break
		}
		p.logger.Debug("store write failed, retrying", "op", w.op, "attempt", attempt, "error", err)
		if p.sleep(ctx, p.retry.backoff(attempt)) != nil {
			break
		}
	}
	return &PersistError{Op: w.op, Attempts: attempt, Err: err}
}
