package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/sparqlflow/internal/compiler"
	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
	"github.com/roach88/sparqlflow/internal/querysql"
	"github.com/roach88/sparqlflow/internal/store"
	"github.com/roach88/sparqlflow/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a fresh in-memory store with deterministic
// query ids.
type Harness struct {
	store   *store.Store
	queries map[string]*engine.Query
	names   []string
	refs    map[string]Evaluator
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string][]engine.ResultChange
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Compile the scenario's CUE queries
//  2. Store the setup quads, then subscribe every query
//  3. Apply each step, recording the result changes per query
//  4. Check expect clauses and, if enabled, the reference evaluator
//  5. Evaluate assertions against the final results
func Run(scenario *Scenario) (*Result, error) {
	trees, names, err := compileQueries(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to compile queries: %w", err)
	}

	st, err := store.Open(":memory:", store.WithLogger(discardLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:   st,
		queries: make(map[string]*engine.Query, len(names)),
		names:   names,
		refs:    make(map[string]Evaluator, len(names)),
		logger:  discardLogger(), // Suppress logs in tests
		pending: make(map[string][]engine.ResultChange),
	}
	defer h.finishReferences()

	ids := testutil.NewSequentialIDGenerator(scenario.Name)
	for _, name := range names {
		q, err := engine.Prepare(trees[name],
			engine.WithLogger(h.logger),
			engine.WithIDGenerator(ids),
			engine.WithChangeHandler(h.record(name)),
		)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}
		h.queries[name] = q
		if h.refs[name], err = newReference(trees[name]); err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	for _, name := range names {
		if err := h.queries[name].Subscribe(ctx, st); err != nil {
			return nil, fmt.Errorf("failed to subscribe %s: %w", name, err)
		}
	}
	// Priming changes are not part of any step.
	h.takePending()

	if err := h.executeSteps(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	for _, name := range names {
		rows := h.queries[name].Results()
		rendered := make([]string, len(rows))
		for i, m := range rows {
			rendered[i] = m.String()
		}
		result.Results[name] = rendered
	}

	actx := &AssertionContext{Queries: h.queries, References: h.refs}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// compileQueries compiles the scenario's query files and inline source into
// one set of named queries.
func compileQueries(s *Scenario) (map[string]*queryir.Query, []string, error) {
	ctx := cuecontext.New()
	var sources []cue.Value
	for _, path := range s.Queries {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, ctx.CompileBytes(data, cue.Filename(path)))
	}
	if s.Inline != "" {
		sources = append(sources, ctx.CompileString(s.Inline, cue.Filename(s.Name+".inline.cue")))
	}

	trees := make(map[string]*queryir.Query)
	var names []string
	for _, v := range sources {
		f, err := compiler.CompileFile(v)
		if err != nil {
			return nil, nil, err
		}
		if errs := compiler.Validate(f); len(errs) > 0 {
			return nil, nil, errs[0]
		}
		for _, name := range f.Names {
			if _, dup := trees[name]; dup {
				return nil, nil, fmt.Errorf("query %s defined twice", name)
			}
			trees[name] = f.Queries[name]
			names = append(names, name)
		}
	}
	return trees, names, nil
}

// newReference picks the SQL evaluator for plain graph patterns and the
// bulk evaluator otherwise.
func newReference(q *queryir.Query) (Evaluator, error) {
	_, err := querysql.NewSQLCompiler().Compile(q)
	switch {
	case err == nil:
		return NewSQLEvaluator(q)
	case errors.Is(err, querysql.ErrUnsupported):
		return NewBulkEvaluator(q), nil
	default:
		return nil, err
	}
}

func (h *Harness) finishReferences() {
	for name, ref := range h.refs {
		if err := ref.Finish(); err != nil {
			h.logger.Error("reference finish failed", "query", name, "error", err)
		}
	}
}

// record returns the change handler for one query.
func (h *Harness) record(name string) engine.ChangeHandler {
	return func(_ string, changes []engine.ResultChange) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.pending[name] = append(h.pending[name], changes...)
	}
}

func (h *Harness) takePending() map[string][]engine.ResultChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pending
	h.pending = make(map[string][]engine.ResultChange)
	return p
}

// prepareReferences forwards a batch of changes to every reference evaluator.
func (h *Harness) prepareReferences(diff []ir.DataDelta) error {
	for _, name := range h.names {
		if err := h.refs[name].Prepare(diff); err != nil {
			return fmt.Errorf("query %s: %w", name, err)
		}
	}
	return nil
}

// executeSetup stores the setup quads before any query subscribes.
func (h *Harness) executeSetup(ctx context.Context, setup []QuadSpec) error {
	var diff []ir.DataDelta
	for i, spec := range setup {
		q, err := spec.Quad()
		if err != nil {
			return fmt.Errorf("setup %d: %w", i, err)
		}
		if _, err := h.store.Add(ctx, q); err != nil {
			return fmt.Errorf("setup %d: %w", i, err)
		}
		diff = append(diff, ir.Added(q))
	}
	return h.prepareReferences(diff)
}

// executeSteps applies every step and checks its expect clauses.
//
// Each step:
//  1. Adds, then removes, its quads through the store
//  2. Records one trace event per applied quad with the changes it caused
//  3. Compares the step's changes with the expect clauses
//  4. Optionally compares every query with its reference evaluator
func (h *Harness) executeSteps(ctx context.Context, s *Scenario, result *Result) error {
	for i, step := range s.Steps {
		stepChanges := make(map[string][]engine.ResultChange)
		var diff []ir.DataDelta

		apply := func(op string, spec QuadSpec) error {
			q, err := spec.Quad()
			if err != nil {
				return err
			}
			var seq int64
			if op == "add" {
				seq, err = h.store.Add(ctx, q)
				diff = append(diff, ir.Added(q))
			} else {
				seq, err = h.store.Remove(ctx, q)
				diff = append(diff, ir.Removed(q))
			}
			if err != nil {
				return err
			}

			ev := TraceEvent{Step: i, Seq: seq, Op: op, Quad: q.String()}
			pending := h.takePending()
			for _, name := range h.names {
				for _, c := range pending[name] {
					ev.Changes = append(ev.Changes, ChangeEvent{Query: name, Change: c.String()})
				}
				stepChanges[name] = append(stepChanges[name], pending[name]...)
			}
			result.Trace = append(result.Trace, ev)
			return nil
		}

		for j, spec := range step.Add {
			if err := apply("add", spec); err != nil {
				return fmt.Errorf("step %d add %d: %w", i, j, err)
			}
		}
		for j, spec := range step.Remove {
			if err := apply("remove", spec); err != nil {
				return fmt.Errorf("step %d remove %d: %w", i, j, err)
			}
		}

		for name, exp := range step.Expect {
			if _, ok := h.queries[name]; !ok {
				result.AddError(fmt.Sprintf("step %d: unknown query %q", i, name))
				continue
			}
			for _, msg := range checkExpect(stepChanges[name], exp) {
				result.AddError(fmt.Sprintf("step %d: query %s: %s", i, name, msg))
			}
		}

		if err := h.prepareReferences(diff); err != nil {
			return err
		}
		if s.CheckReference {
			for _, name := range h.names {
				if msg := compareWithReference(h.queries[name], h.refs[name]); msg != "" {
					result.AddError(fmt.Sprintf("step %d: query %s: %s", i, name, msg))
				}
			}
		}

		h.logger.Info("step completed",
			"step", i,
			"added", len(step.Add),
			"removed", len(step.Remove),
		)
	}
	return nil
}

// checkExpect compares the changes of one step with an expect clause.
func checkExpect(changes []engine.ResultChange, exp *ExpectClause) []string {
	var gotNew, gotRemoved []ir.Mapping
	for _, c := range changes {
		if c.Kind == engine.Removed {
			gotRemoved = append(gotRemoved, c.Value)
		} else {
			gotNew = append(gotNew, c.Value)
		}
	}

	var errs []string
	for _, part := range []struct {
		label string
		got   []ir.Mapping
		want  []Row
	}{
		{"new", gotNew, exp.New},
		{"removed", gotRemoved, exp.Removed},
	} {
		want, err := rowMappings(part.want)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", part.label, err))
			continue
		}
		if msg := diffMultisets(part.got, want); msg != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", part.label, msg))
		}
	}
	return errs
}

// compareWithReference evaluates ref and compares it with the incremental
// results of q.
func compareWithReference(q *engine.Query, ref Evaluator) string {
	want, err := ref.Eval()
	if err != nil {
		return fmt.Sprintf("reference evaluation failed: %v", err)
	}
	if msg := diffMultisets(q.Results(), want); msg != "" {
		return "differs from reference: " + msg
	}
	return ""
}

func rowMappings(rows []Row) ([]ir.Mapping, error) {
	out := make([]ir.Mapping, len(rows))
	for i, r := range rows {
		m, err := r.Mapping()
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}
