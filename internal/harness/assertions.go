package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/chronod/internal/store"
	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/vlc"
)

// verifyPage is the page size used when rehashing a node's snapshots.
const verifyPage = 100

// errNoStore is returned by assertions naming a node without a store.
var errNoStore = errors.New("no store for node")

// AssertionContext provides what store-backed assertions need.
type AssertionContext struct {
	Ctx     context.Context
	Stores  map[string]*store.Store
	Emitted map[string]trigger.Event
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s on %s: %s %s\n", ev.Step, ev.Op, ev.MessageID, ev.Node, ev.State, ev.Clock)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertClock:
		return assertClock(result, a)
	case AssertOrdering:
		return assertOrdering(actx.Emitted, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertMergeLogs:
		st, ok := actx.Stores[a.Node]
		if !ok {
			return fmt.Errorf("%w %q", errNoStore, a.Node)
		}
		return assertMergeLogs(actx.Ctx, st, a)
	case AssertVerify:
		st, ok := actx.Stores[a.Node]
		if !ok {
			return fmt.Errorf("%w %q", errNoStore, a.Node)
		}
		return assertVerify(actx.Ctx, st, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertClock compares the final clock of a node. Absent and zero entries
// are equal.
func assertClock(result *Result, a Assertion) error {
	got := result.Clocks[a.Node]
	want := vlc.Clock(a.Clock)
	if got.Equal(want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertClock,
		Expected: fmt.Sprintf("%s at %s", a.Node, want),
		Actual:   got.String(),
		Trace:    result.Trace,
	}
}

// assertOrdering compares the snapshots two emits produced.
func assertOrdering(emitted map[string]trigger.Event, a Assertion) error {
	left, ok := emitted[a.Left]
	if !ok {
		return fmt.Errorf("message %q was not emitted", a.Left)
	}
	right, ok := emitted[a.Right]
	if !ok {
		return fmt.Errorf("message %q was not emitted", a.Right)
	}

	want, _ := parseOrdering(a.Expect)
	got := left.Info.Clock.Compare(right.Info.Clock)
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertOrdering,
		Expected: fmt.Sprintf("%s %s %s", a.Left, want, a.Right),
		Actual:   fmt.Sprintf("%s %s %s (%s vs %s)", a.Left, got, a.Right, left.Info.Clock, right.Info.Clock),
	}
}

// assertTraceCount counts steps that ended in a.State, on a.Node if set.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.State == a.State && (a.Node == "" || ev.Node == a.Node) {
			count++
		}
	}

	if count != a.Count {
		where := ""
		if a.Node != "" {
			where = " on " + a.Node
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s steps%s", a.Count, a.State, where),
			Actual:   fmt.Sprintf("%d steps", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertMergeLogs(ctx context.Context, st *store.Store, a Assertion) error {
	n, err := st.CountMergeLogs(ctx)
	if err != nil {
		return err
	}
	if n != uint64(a.Count) {
		return &AssertionError{
			Type:     AssertMergeLogs,
			Expected: fmt.Sprintf("%d merge logs on %s", a.Count, a.Node),
			Actual:   fmt.Sprintf("%d merge logs", n),
		}
	}
	return nil
}

// assertVerify rehashes every stored snapshot and checks merge log
// references.
func assertVerify(ctx context.Context, st *store.Store, a Assertion) error {
	var problems []string

	var cursor int64
	for {
		page, err := st.FindClockInfosAfter(ctx, cursor, verifyPage)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			cursor = rec.Seq
			if err := vlc.VerifyHash(rec.ClockInfo); err != nil {
				problems = append(problems, fmt.Sprintf("seq %d: %v", rec.Seq, err))
			}
		}
	}

	orphans, err := st.FindOrphanedMergeLogs(ctx)
	if err != nil {
		return err
	}
	for _, o := range orphans {
		problems = append(problems, fmt.Sprintf("merge log %d references a missing snapshot", o.Seq))
	}

	if len(problems) > 0 {
		return &AssertionError{
			Type:     AssertVerify,
			Expected: fmt.Sprintf("consistent store on %s", a.Node),
			Actual:   strings.Join(problems, "; "),
		}
	}
	return nil
}
