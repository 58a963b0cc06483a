package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/session"
	"github.com/roach88/strata/internal/values"
)

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
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s", ev.Seq, ev.Type, ev.Action, ev.Entity)
			if ev.Args != nil {
				fmt.Fprintf(&buf, " %v", ev.Args)
			}
			if ev.Error != "" {
				fmt.Fprintf(&buf, " error=%s", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// matches reports whether a trace entry satisfies the kind, action and
// entity filters of an assertion. Empty filters match anything.
func matches(ev TraceEvent, a Assertion, action string) bool {
	if a.Kind != "" && ev.Type != a.Kind {
		return false
	}
	if ev.Action != action {
		return false
	}
	return a.Entity == "" || ev.Entity == a.Entity
}

func describe(a Assertion, action string) string {
	var parts []string
	if a.Kind != "" {
		parts = append(parts, a.Kind)
	}
	parts = append(parts, action)
	if a.Entity != "" {
		parts = append(parts, "on "+a.Entity)
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that some matching entry carries the expected
// args (subset match).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a, a.Action) && matchArgs(ev.Args, a.Args) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s with args %v", describe(a, a.Action), a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of actions appear in
// the specified order. Actions need not be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		for _, action := range a.Actions {
			if _, seen := positions[action]; !seen && matches(ev, a, action) {
				positions[action] = i + 1
			}
		}
	}

	for _, action := range a.Actions {
		if _, ok := positions[action]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", describe(a, action)),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the action appears exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a, a.Action) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a, a.Action)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState loads the entity from its backend, bypassing the session
// cache, and checks the expected values (subset match).
func assertFinalState(ctx context.Context, s *session.Session, cat meta.Catalog, a Assertion) error {
	m, err := cat.Entity(a.Entity)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	id, err := values.Decode(a.ID, m.ID.Kind)
	if err != nil {
		return fmt.Errorf("final_state: %s id: %w", m.Class, err)
	}

	s.Clear()
	entity, err := s.Find(ctx, m, id)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("load %s %v", m.Class, a.ID),
			Actual:   fmt.Sprintf("load error: %v", err),
		}
	}

	if a.Absent {
		if entity != nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("no %s with id %v", m.Class, a.ID),
				Actual:   "entity found",
			}
		}
		return nil
	}
	if entity == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s with id %v", m.Class, a.ID),
			Actual:   "entity not found",
		}
	}

	return checkState(m, entity, cat, a.Expect)
}

func checkState(m *meta.EntityMetadata, entity any, cat meta.Catalog, expect map[string]any) error {
	snap, err := values.Snapshot(cat, m, entity)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	if key := values.MatchSubset(expect, snap); key != "" {
		actual, ok := snap[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", m.Class, key, expect[key]),
				Actual:   fmt.Sprintf("%s.%s is not set", m.Class, key),
			}
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s.%s = %v", m.Class, key, expect[key]),
			Actual:   fmt.Sprintf("%s.%s = %v", m.Class, key, actual),
		}
	}
	return nil
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, want := range expected {
		got, exists := actualMap[key]
		if !exists || !values.Equal(want, got) {
			return false
		}
	}
	return true
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Session *session.Session
	Catalog *meta.StaticCatalog
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides session access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			if actx == nil || actx.Session == nil || actx.Catalog == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a session", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Session, actx.Catalog, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
