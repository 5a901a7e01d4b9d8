package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/chronod/internal/store"
	"github.com/roach88/chronod/internal/testutil"
	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/vlc"
)

// StartMillis is the reading of the shared scenario clock before the first
// step.
const StartMillis int64 = 1_000

// member is one node taking part in a scenario.
type member struct {
	id       string
	store    *store.Store
	pipeline *trigger.Pipeline
}

// Harness executes scenario steps against a set of in-process nodes.
type Harness struct {
	nodes   map[string]*member
	order   []string
	clock   *testutil.ManualClock
	emitted map[string]trigger.Event
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Every run gets fresh in-memory stores, so scenarios are isolated from
// each other. An error is returned for scenarios that cannot be executed
// (invalid structure, delivery of a message never emitted, store failure);
// unmet expectations are reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	h, err := newHarness(scenario.Nodes)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Flow {
		ev, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		result.AddTrace(ev)
		if step.Expect != "" && ev.State != step.Expect {
			result.AddError(fmt.Sprintf("flow[%d]: expected %s %s on %s to end %s, got %s",
				i, ev.Op, ev.MessageID, ev.Node, step.Expect, ev.State))
		}
	}

	for _, id := range h.order {
		result.Clocks[id] = h.nodes[id].pipeline.Engine().Snapshot()
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Stores:  make(map[string]*store.Store, len(h.nodes)),
		Emitted: h.emitted,
	}
	for id, m := range h.nodes {
		actx.Stores[id] = m.store
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func newHarness(ids []string) (*Harness, error) {
	h := &Harness{
		nodes:   make(map[string]*member, len(ids)),
		clock:   testutil.NewManualClock(StartMillis).WithStep(1),
		emitted: make(map[string]trigger.Event),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, id := range ids {
		m, err := h.join(id)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		h.nodes[id] = m
		h.order = append(h.order, id)
	}
	return h, nil
}

func (h *Harness) join(id string) (*member, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	engine, err := vlc.NewEngine(id, vlc.WithNow(h.clock.Now))
	if err != nil {
		st.Close()
		return nil, err
	}

	p := trigger.New(engine, st,
		trigger.WithIDGenerator(testutil.NewSequenceIDGenerator(id)),
		trigger.WithLogger(h.logger),
	)
	return &member{id: id, store: st, pipeline: p}, nil
}

func (h *Harness) close() {
	for _, m := range h.nodes {
		m.pipeline.Stop()
		m.store.Close()
	}
}

func (h *Harness) execute(ctx context.Context, i int, step FlowStep) (TraceEvent, error) {
	if step.Emit != "" {
		return h.emit(ctx, i, step)
	}
	return h.deliver(ctx, i, step)
}

// emit originates a message on step.Emit. Malformed messages are recorded
// as rejected so scenarios can exercise input validation.
func (h *Harness) emit(ctx context.Context, i int, step FlowStep) (TraceEvent, error) {
	m := h.nodes[step.Emit]
	trace := TraceEvent{Step: i, Op: "emit", Node: m.id, MessageID: step.ID}

	if _, ok := h.emitted[step.ID]; ok && step.ID != "" {
		return trace, fmt.Errorf("message %q emitted twice", step.ID)
	}

	typ := vlc.MessageTypeEvent
	if step.Type != "" {
		var err error
		if typ, err = vlc.ParseMessageType(step.Type); err != nil {
			return trace, err
		}
	}

	ev, err := m.pipeline.Emit(ctx, vlc.ApplicationMessage{
		ID:   step.ID,
		Type: typ,
		Data: []byte(step.Data),
		To:   step.To,
	})
	if err != nil {
		if vlc.IsMalformed(err) {
			trace.State = StateRejected
			trace.Error = err.Error()
			return trace, nil
		}
		return trace, err
	}

	h.emitted[ev.Message.ID] = ev
	trace.MessageID = ev.Message.ID
	trace.State = StateEmitted
	trace.Clock = ev.Info.Clock
	trace.Count = ev.Info.Count
	trace.ClockHash = ev.Info.ClockHash
	return trace, nil
}

// deliver hands the event emitted as step.Deliver to step.To.
func (h *Harness) deliver(ctx context.Context, i int, step FlowStep) (TraceEvent, error) {
	m := h.nodes[step.To]
	trace := TraceEvent{Step: i, Op: "deliver", Node: m.id, MessageID: step.Deliver}

	ev, ok := h.emitted[step.Deliver]
	if !ok {
		return trace, fmt.Errorf("message %q was not emitted", step.Deliver)
	}
	if step.Tamper {
		ev.Info.Clock = ev.Info.Clock.Copy()
		ev.Info.Clock[ev.Info.NodeID]++
		ev.Info.Count++
	}

	out, err := m.pipeline.Receive(ctx, ev)
	trace.State = out.State.String()
	trace.Clock = out.Info.Clock
	trace.Count = out.Info.Count
	trace.ClockHash = out.Info.ClockHash
	if err != nil {
		if out.State != trigger.StateRejected {
			return trace, err
		}
		trace.Error = err.Error()
	}
	return trace, nil
}
