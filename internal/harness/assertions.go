package harness

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/assembly"
	"github.com/roach88/flowstate/internal/data"
)

// valueTolerance is the absolute difference accepted between expected and
// computed property or attribute values.
const valueTolerance = 1e-9

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s t=%d\n", event.Seq, event.Label(), event.Time)
		}
	}
	return buf.String()
}

// matches reports whether event is selected by node and kind. Empty
// selectors match everything.
func matches(event TraceEvent, node, kind string) bool {
	return (node == "" || event.Node == node) && (kind == "" || event.Kind == kind)
}

// assertTraceContains checks that at least one event matches node and kind.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matches(event, assertion.Node, assertion.Kind) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s:%s", assertion.Node, assertion.Kind),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the labelled events appear in order.
// Events don't need to be consecutive; each label is matched after the
// previous one's position.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, label := range assertion.Events {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Label() == label {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   fmt.Sprintf("%s not found after the preceding events", label),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events match node and kind.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, assertion.Node, assertion.Kind) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events of %s", assertion.Count, assertion.Kind, assertion.Node),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState evaluates the pipeline once more and checks the output.
func assertFinalState(ctx context.Context, asm *assembly.Assembly, assertion Assertion) error {
	p, ok := asm.Pipeline(assertion.Pipeline)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("pipeline %s", assertion.Pipeline),
			Actual:   "pipeline not defined",
		}
	}
	st, err := wait(ctx, p.EvaluatePipeline(anim.TimePoint(assertion.Time)))
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("output of %s at %d", assertion.Pipeline, assertion.Time),
			Actual:   fmt.Sprintf("evaluation error: %v", err),
		}
	}
	if msgs := checkExpect(st, assertion.Expect); len(msgs) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("output of %s at %d to match", assertion.Pipeline, assertion.Time),
			Actual:   strings.Join(msgs, "; "),
		}
	}
	return nil
}

// checkExpect compares a state with an expect clause and returns one
// message per mismatch. Keys are visited in sorted order.
func checkExpect(st *data.FlowState, e *ExpectClause) []string {
	var msgs []string

	if e.Status != "" {
		want, _ := data.ParseStatusType(e.Status)
		if got := st.Status().Type; got != want {
			msgs = append(msgs, fmt.Sprintf("status: expected %s, got %s", want, st.Status()))
		}
	}
	if e.StatusText != "" && !strings.Contains(st.Status().Text, e.StatusText) {
		msgs = append(msgs, fmt.Sprintf("status text: expected to contain %q, got %q", e.StatusText, st.Status().Text))
	}
	if e.Validity != "" {
		if got := st.Validity().String(); got != e.Validity {
			msgs = append(msgs, fmt.Sprintf("validity: expected %s, got %s", e.Validity, got))
		}
	}

	for _, name := range sortedKeys(e.Values) {
		want := e.Values[name]
		prop, err := data.ExpectProperty(st, name)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("property %s: not in output", name))
			continue
		}
		if !floatsEqual(prop.Values(), want) {
			msgs = append(msgs, fmt.Sprintf("property %s: expected %v, got %v", name, want, prop.Values()))
		}
	}

	for _, name := range sortedKeys(e.Attributes) {
		want := e.Attributes[name]
		got, ok := st.Attribute(name)
		switch {
		case !ok:
			msgs = append(msgs, fmt.Sprintf("attribute %s: not in output", name))
		case math.Abs(got-want) > valueTolerance:
			msgs = append(msgs, fmt.Sprintf("attribute %s: expected %v, got %v", name, want, got))
		}
	}
	return msgs
}

func floatsEqual(got, want []float64) bool {
	return slices.EqualFunc(got, want, func(a, b float64) bool {
		return math.Abs(a-b) <= valueTolerance
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx      context.Context
	Assembly *assembly.Assembly
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the assembled pipelines for final_state
// assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Assembly == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires assembled pipelines", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Assembly, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
