package harness

import (
	"context"
	"fmt"
	"strings"
)

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
			fmt.Fprintf(&buf, "  [%d] %s %s", ev.Seq, ev.Op, ev.Outcome)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns a message per
// failure.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(ctx, h, result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(ctx context.Context, h *Harness, result *Result, a Assertion) error {
	switch a.Type {
	case AssertPostCount:
		return assertPostCount(ctx, h, a)
	case AssertSynced:
		if got := h.doc.Markup(); got != h.external {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("editor markup equal to external value %q", h.external),
				Actual:   fmt.Sprintf("%q", got),
			}
		}
	case AssertSurfaceWrites:
		if got := h.doc.Writes(); got != *a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d writes into the editor", *a.Count),
				Actual:   fmt.Sprintf("%d", got),
				Trace:    result.Trace,
			}
		}
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertExternal:
		if h.external != a.Value {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%q", a.Value),
				Actual:   fmt.Sprintf("%q", h.external),
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func assertPostCount(ctx context.Context, h *Harness, a Assertion) error {
	authorID, err := h.authorID(ctx, a.Author)
	if err != nil {
		return fmt.Errorf("post_count: %w", err)
	}
	list, err := h.posts.ListByAuthor(ctx, authorID)
	if err != nil {
		return fmt.Errorf("post_count: %w", err)
	}
	if len(list) != *a.Count {
		who := a.Author
		if who == "" {
			who = "current user"
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d posts by %s", *a.Count, who),
			Actual:   fmt.Sprintf("%d", len(list)),
		}
	}
	return nil
}

// assertTraceContains counts events for the op, optionally restricted to an
// outcome. Without a count any match passes.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if ev.Op == a.Op && (a.Outcome == "" || ev.Outcome == a.Outcome) {
			n++
		}
	}

	what := a.Op
	if a.Outcome != "" {
		what += " with outcome " + a.Outcome
	}
	switch {
	case a.Count == nil && n == 0:
		return &AssertionError{Type: a.Type, Expected: what, Actual: "not found in trace", Trace: trace}
	case a.Count != nil && n != *a.Count:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s exactly %d times", what, *a.Count),
			Actual:   fmt.Sprintf("%d times", n),
			Trace:    trace,
		}
	}
	return nil
}
