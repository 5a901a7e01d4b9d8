package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/vlc"
)

// Scenario defines a clock exchange scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Nodes lists the node ids taking part.
	Nodes []string `yaml:"nodes"`

	// Flow is executed in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final clocks, trace and stores.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is either an emit or a deliver. Exactly one of Emit and Deliver
// is set.
type FlowStep struct {
	// Emit is the node originating a message.
	Emit string `yaml:"emit,omitempty"`

	// ID, Type and Data describe the emitted message. Type defaults to
	// "event".
	ID   string `yaml:"id,omitempty"`
	Type string `yaml:"type,omitempty"`
	Data string `yaml:"data,omitempty"`

	// Deliver is the message id of an earlier emit to hand to To.
	Deliver string `yaml:"deliver,omitempty"`
	To      string `yaml:"to,omitempty"`

	// Tamper bumps the sender's counter of the delivered snapshot without
	// rehashing it.
	Tamper bool `yaml:"tamper,omitempty"`

	// Expect is the state the step must end in: "emitted" or "rejected"
	// for emits, a receive state name for deliveries. Empty skips the
	// check.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Node selects the node (clock, merge_logs, verify, and optionally
	// trace_count).
	Node string `yaml:"node,omitempty"`

	// Clock is the expected final clock (clock).
	Clock map[string]uint64 `yaml:"clock,omitempty"`

	// Left and Right are emitted message ids (ordering).
	Left  string `yaml:"left,omitempty"`
	Right string `yaml:"right,omitempty"`

	// Expect is the expected ordering name (ordering).
	Expect string `yaml:"expect,omitempty"`

	// State is the step state to count (trace_count).
	State string `yaml:"state,omitempty"`

	// Count is the expected number (trace_count, merge_logs).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertClock      = "clock"
	AssertOrdering   = "ordering"
	AssertTraceCount = "trace_count"
	AssertMergeLogs  = "merge_logs"
	AssertVerify     = "verify"
)

// Step states recorded for emits. Deliveries record trigger.State names.
const (
	StateEmitted  = "emitted"
	StateRejected = "rejected"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks structure only. Whether a delivered message was
// emitted earlier is decided while running.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("nodes list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	nodes := make(map[string]bool, len(s.Nodes))
	for i, id := range s.Nodes {
		if err := vlc.ValidateNodeID(id); err != nil {
			return fmt.Errorf("nodes[%d]: %w", i, err)
		}
		if nodes[id] {
			return fmt.Errorf("nodes[%d]: duplicate node %q", i, id)
		}
		nodes[id] = true
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step, nodes); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, nodes); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step FlowStep, nodes map[string]bool) error {
	switch {
	case step.Emit != "" && step.Deliver != "":
		return fmt.Errorf("flow[%d]: emit and deliver are mutually exclusive", index)
	case step.Emit != "":
		if !nodes[step.Emit] {
			return fmt.Errorf("flow[%d]: unknown node %q", index, step.Emit)
		}
		if step.To != "" && !nodes[step.To] {
			return fmt.Errorf("flow[%d]: unknown node %q", index, step.To)
		}
		if step.Type != "" {
			if _, err := vlc.ParseMessageType(step.Type); err != nil {
				return fmt.Errorf("flow[%d]: %w", index, err)
			}
		}
		if step.Tamper {
			return fmt.Errorf("flow[%d]: tamper applies to deliveries only", index)
		}
		if step.Expect != "" && step.Expect != StateEmitted && step.Expect != StateRejected {
			return fmt.Errorf("flow[%d]: emit expect must be %q or %q", index, StateEmitted, StateRejected)
		}
	case step.Deliver != "":
		if step.To == "" {
			return fmt.Errorf("flow[%d]: to is required for deliver", index)
		}
		if !nodes[step.To] {
			return fmt.Errorf("flow[%d]: unknown node %q", index, step.To)
		}
		if step.Expect != "" && !isTerminalState(step.Expect) {
			return fmt.Errorf("flow[%d]: unknown receive state %q", index, step.Expect)
		}
	default:
		return fmt.Errorf("flow[%d]: emit or deliver is required", index)
	}
	return nil
}

func validateAssertion(index int, a Assertion, nodes map[string]bool) error {
	requireNode := func() error {
		if !nodes[a.Node] {
			return fmt.Errorf("assertions[%d]: unknown node %q for %s", index, a.Node, a.Type)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertClock:
		return requireNode()
	case AssertMergeLogs:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for merge_logs", index)
		}
		return requireNode()
	case AssertVerify:
		return requireNode()
	case AssertOrdering:
		if a.Left == "" || a.Right == "" {
			return fmt.Errorf("assertions[%d]: left and right are required for ordering", index)
		}
		if _, ok := parseOrdering(a.Expect); !ok {
			return fmt.Errorf("assertions[%d]: unknown ordering %q", index, a.Expect)
		}
	case AssertTraceCount:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
		if a.Node != "" {
			return requireNode()
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func isTerminalState(name string) bool {
	for _, s := range []trigger.State{trigger.StateDispatched, trigger.StateRejected, trigger.StateDuplicate} {
		if s.String() == name {
			return true
		}
	}
	return false
}

func parseOrdering(name string) (vlc.Ordering, bool) {
	for _, o := range []vlc.Ordering{vlc.Equal, vlc.Before, vlc.After, vlc.Concurrent} {
		if o.String() == name {
			return o, true
		}
	}
	return 0, false
}
