package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Query    string       // Query the assertion was about
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Results  []ir.Mapping // Final results for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Query != "" {
		fmt.Fprintf(&buf, " (query %s)", e.Query)
	}
	buf.WriteByte('\n')

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Results) > 0 {
		fmt.Fprintf(&buf, "\nFinal results:\n")
		for i, m := range e.Results {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, m)
		}
	}
	return buf.String()
}

// assertResults checks the query's results against the expected rows, as a
// multiset or, when ordered, position by position.
func assertResults(q *engine.Query, a Assertion) error {
	want, err := rowMappings(a.Rows)
	if err != nil {
		return err
	}
	got := q.Results()

	if a.Ordered {
		if renderAll(got) == renderAll(want) {
			return nil
		}
		return &AssertionError{
			Type:     AssertResults,
			Query:    a.Query,
			Expected: renderAll(want),
			Actual:   renderAll(got),
			Results:  got,
		}
	}

	if msg := diffMultisets(got, want); msg != "" {
		return &AssertionError{
			Type:     AssertResults,
			Query:    a.Query,
			Expected: fmt.Sprintf("%d results %s", len(want), renderAll(want)),
			Actual:   msg,
			Results:  got,
		}
	}
	return nil
}

// assertPresence checks that the row occurs (contains) or does not occur
// (absent) in the query's results.
func assertPresence(q *engine.Query, a Assertion) error {
	m, err := a.Row.Mapping()
	if err != nil {
		return err
	}
	n := q.Count(m)
	wantPresent := a.Type == AssertContains
	if (n > 0) == wantPresent {
		return nil
	}

	expected := fmt.Sprintf("%s present", m)
	if !wantPresent {
		expected = fmt.Sprintf("%s absent", m)
	}
	return &AssertionError{
		Type:     a.Type,
		Query:    a.Query,
		Expected: expected,
		Actual:   fmt.Sprintf("%d occurrences", n),
		Results:  q.Results(),
	}
}

// assertCount checks the number of visible results.
func assertCount(q *engine.Query, a Assertion) error {
	if n := q.Len(); n != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Query:    a.Query,
			Expected: fmt.Sprintf("%d results", a.Count),
			Actual:   fmt.Sprintf("%d results", n),
			Results:  q.Results(),
		}
	}
	return nil
}

func renderAll(ms []ir.Mapping) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// AssertionContext provides the queries and reference evaluators
// assertions run against.
type AssertionContext struct {
	Queries    map[string]*engine.Query
	References map[string]Evaluator
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		q, ok := actx.Queries[assertion.Query]
		if !ok && assertion.Type != AssertMatchesReference {
			errors = append(errors, fmt.Sprintf("assertion[%d]: unknown query %q", i, assertion.Query))
			continue
		}

		switch assertion.Type {
		case AssertResults:
			err = assertResults(q, assertion)
		case AssertContains, AssertAbsent:
			err = assertPresence(q, assertion)
		case AssertCount:
			err = assertCount(q, assertion)
		case AssertMatchesReference:
			err = assertMatchesReference(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertMatchesReference compares one query, or every query when none is
// named, with its reference evaluator.
func assertMatchesReference(actx *AssertionContext, a Assertion) error {
	names := []string{a.Query}
	if a.Query == "" {
		names = names[:0]
		for name := range actx.Queries {
			names = append(names, name)
		}
		slices.Sort(names)
	}

	for _, name := range names {
		q, ok := actx.Queries[name]
		ref, hasRef := actx.References[name]
		if !ok || !hasRef {
			return fmt.Errorf("no reference evaluator for query %q", name)
		}
		if msg := compareWithReference(q, ref); msg != "" {
			return &AssertionError{
				Type:     AssertMatchesReference,
				Query:    name,
				Expected: "results equal to the reference evaluation",
				Actual:   msg,
				Results:  q.Results(),
			}
		}
	}
	return nil
}
