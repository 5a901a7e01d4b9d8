// Package harness runs clock exchange scenarios across several in-process
// nodes and checks the resulting clocks and provenance.
//
// Each node is a real trigger.Pipeline over its own in-memory SQLite store.
// Delivery between nodes is explicit: a scenario step hands one emitted
// event to one receiver, so reordering, duplication and tampering are
// expressed directly in the scenario instead of depending on a network.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: two_node_gossip
//	description: "B folds A's event into its clock"
//	nodes: [A, B]
//	flow:
//	  - emit: A
//	    id: a1
//	    data: hello
//	  - deliver: a1
//	    to: B
//	    expect: dispatched
//	assertions:
//	  - type: clock
//	    node: B
//	    clock: {A: 1, B: 1}
//	  - type: ordering
//	    left: a1
//	    right: b1
//	    expect: concurrent
//
// An emit step without id gets "<node>-1", "<node>-2", ... A deliver step
// may set tamper to bump the sender's counter without rehashing, which the
// receiver must reject.
//
// # Assertion Types
//
//   - clock: the final clock of a node equals the given counters
//   - ordering: causal relation between the snapshots two emits produced
//   - trace_count: number of steps that ended in a state, optionally per node
//   - merge_logs: number of merge logs a node persisted
//   - verify: every stored snapshot of a node rehashes and no merge log
//     references a missing snapshot
//
// # Deterministic Testing
//
// All nodes share one testutil.ManualClock advancing a millisecond per
// reading, and generated ids come from testutil.SequenceIDGenerator, so a
// scenario always produces the same trace. RunWithGolden compares that trace
// against testdata/golden/<name>.golden.
package harness
