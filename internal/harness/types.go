package harness

import "github.com/roach88/chronod/internal/vlc"

// TraceEvent records the outcome of one flow step.
type TraceEvent struct {
	Step      int       `json:"step"`
	Op        string    `json:"op"`   // "emit" or "deliver"
	Node      string    `json:"node"` // emitter or receiver
	MessageID string    `json:"message_id"`
	State     string    `json:"state"`
	Clock     vlc.Clock `json:"clock,omitempty"`
	Count     uint64    `json:"count"`
	ClockHash string    `json:"clock_hash,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Clocks is the final clock of every node.
	Clocks map[string]vlc.Clock `json:"clocks"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Clocks: make(map[string]vlc.Clock),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends the event for one step.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
