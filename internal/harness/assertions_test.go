package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/ir"
)

// assertionFixture prepares the knows query over a->b, a->b, b->c with a
// matching bulk reference.
func assertionFixture(t *testing.T) *AssertionContext {
	t.Helper()
	q, err := engine.Prepare(knowsQuery(),
		engine.WithLogger(discardLogger()),
		engine.WithIDGenerator(engine.NewFixedGenerator("knows")),
	)
	require.NoError(t, err)

	ref := NewBulkEvaluator(knowsQuery())
	for _, quad := range []ir.Quad{knows("ex:a", "ex:b"), knows("ex:a", "ex:b"), knows("ex:b", "ex:c")} {
		_, err := q.Process(ir.Added(quad))
		require.NoError(t, err)
		require.NoError(t, ref.Prepare([]ir.DataDelta{ir.Added(quad)}))
	}
	return &AssertionContext{
		Queries:    map[string]*engine.Query{"knows": q},
		References: map[string]Evaluator{"knows": ref},
	}
}

func TestEvaluateAssertions(t *testing.T) {
	ab := Row{"x": "ex:a", "y": "ex:b"}
	bc := Row{"x": "ex:b", "y": "ex:c"}

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "results as multiset",
			assertion: Assertion{Type: AssertResults, Query: "knows", Rows: []Row{bc, ab, ab}},
		},
		{
			name:      "results missing occurrence",
			assertion: Assertion{Type: AssertResults, Query: "knows", Rows: []Row{ab, bc}},
			wantErr:   "unexpected {?x=<ex:a> ?y=<ex:b>} x1",
		},
		{
			name:      "ordered results",
			assertion: Assertion{Type: AssertResults, Query: "knows", Rows: []Row{bc, ab, ab}, Ordered: true},
			wantErr:   "Assertion failed: results (query knows)",
		},
		{
			name:      "contains",
			assertion: Assertion{Type: AssertContains, Query: "knows", Row: bc},
		},
		{
			name:      "contains fails",
			assertion: Assertion{Type: AssertContains, Query: "knows", Row: Row{"x": "ex:c", "y": "ex:a"}},
			wantErr:   "Actual: 0 occurrences",
		},
		{
			name:      "absent",
			assertion: Assertion{Type: AssertAbsent, Query: "knows", Row: Row{"x": "ex:c", "y": "ex:a"}},
		},
		{
			name:      "absent fails",
			assertion: Assertion{Type: AssertAbsent, Query: "knows", Row: ab},
			wantErr:   "Actual: 2 occurrences",
		},
		{
			name:      "count",
			assertion: Assertion{Type: AssertCount, Query: "knows", Count: 3},
		},
		{
			name:      "count fails",
			assertion: Assertion{Type: AssertCount, Query: "knows", Count: 1},
			wantErr:   "Expected: 1 results",
		},
		{
			name:      "matches reference",
			assertion: Assertion{Type: AssertMatchesReference},
		},
		{
			name:      "unknown query",
			assertion: Assertion{Type: AssertCount, Query: "nope"},
			wantErr:   `assertion[0]: unknown query "nope"`,
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "final_state", Query: "knows"},
			wantErr:   `unknown assertion type "final_state"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions([]Assertion{tt.assertion}, assertionFixture(t))
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestEvaluateAssertions_ReferenceMismatch(t *testing.T) {
	actx := assertionFixture(t)
	require.NoError(t, actx.References["knows"].Prepare([]ir.DataDelta{ir.Added(knows("ex:c", "ex:d"))}))

	errs := EvaluateAssertions([]Assertion{{Type: AssertMatchesReference, Query: "knows"}}, actx)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "differs from reference: missing {?x=<ex:c> ?y=<ex:d>} x1")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertCount,
		Query:    "knows",
		Expected: "1 results",
		Actual:   "2 results",
		Results:  []ir.Mapping{row("x", "ex:a")},
	}
	assert.Equal(t, "Assertion failed: count (query knows)\n"+
		"  Expected: 1 results\n"+
		"  Actual: 2 results\n"+
		"\nFinal results:\n"+
		"  [1] {?x=<ex:a>}\n", err.Error())
}
