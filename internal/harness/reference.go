package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
	"github.com/roach88/sparqlflow/internal/store"
)

// Evaluator is a from-scratch query evaluator used as an oracle for the
// incremental engine.
//
// Prepare applies a batch of changes to the evaluator's data, Eval computes
// the full result of the query over the current data, and Finish releases
// resources. Eval results are compared as multisets.
type Evaluator interface {
	Prepare(diff []ir.DataDelta) error
	Eval() ([]ir.Mapping, error)
	Finish() error
}

// BulkEvaluator evaluates by preparing a fresh engine query and loading
// every live quad into it at once, in canonical order. It supports every
// query shape the engine supports.
type BulkEvaluator struct {
	tree *queryir.Query
	live map[ir.Quad]int
}

// NewBulkEvaluator creates a BulkEvaluator for q with no data.
func NewBulkEvaluator(q *queryir.Query) *BulkEvaluator {
	return &BulkEvaluator{tree: q, live: make(map[ir.Quad]int)}
}

// Prepare implements Evaluator. Removing a quad that is not live fails.
func (e *BulkEvaluator) Prepare(diff []ir.DataDelta) error {
	for _, d := range diff {
		q := d.Quad.Normalize()
		switch d.Kind {
		case ir.Addition:
			e.live[q]++
		case ir.Deletion:
			if e.live[q] == 0 {
				return fmt.Errorf("remove %s: not present", q)
			}
			e.live[q]--
			if e.live[q] == 0 {
				delete(e.live, q)
			}
		}
	}
	return nil
}

// Eval implements Evaluator.
func (e *BulkEvaluator) Eval() ([]ir.Mapping, error) {
	q, err := engine.Prepare(e.tree,
		engine.WithLogger(discardLogger()),
		engine.WithIDGenerator(engine.NewFixedGenerator("reference")),
	)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}

	quads := make([]ir.Quad, 0, len(e.live))
	for quad := range e.live {
		quads = append(quads, quad)
	}
	slices.SortFunc(quads, func(a, b ir.Quad) int {
		return strings.Compare(a.String(), b.String())
	})
	for _, quad := range quads {
		for range e.live[quad] {
			if _, err := q.Process(ir.Added(quad)); err != nil {
				return nil, fmt.Errorf("reference: %w", err)
			}
		}
	}
	return q.Results(), nil
}

// Finish implements Evaluator.
func (e *BulkEvaluator) Finish() error {
	clear(e.live)
	return nil
}

// SQLEvaluator evaluates with a single SQL statement over its own store.
// Only plain basic graph patterns are supported; Eval returns an error
// wrapping querysql.ErrUnsupported otherwise.
type SQLEvaluator struct {
	tree  *queryir.Query
	store *store.Store
}

// NewSQLEvaluator creates an SQLEvaluator backed by a fresh in-memory store.
func NewSQLEvaluator(q *queryir.Query) (*SQLEvaluator, error) {
	st, err := store.Open(":memory:", store.WithLogger(discardLogger()))
	if err != nil {
		return nil, fmt.Errorf("reference store: %w", err)
	}
	return &SQLEvaluator{tree: q, store: st}, nil
}

// Prepare implements Evaluator.
func (e *SQLEvaluator) Prepare(diff []ir.DataDelta) error {
	ctx := context.Background()
	for _, d := range diff {
		var err error
		if d.Kind == ir.Addition {
			_, err = e.store.Add(ctx, d.Quad)
		} else {
			_, err = e.store.Remove(ctx, d.Quad)
		}
		if err != nil {
			return fmt.Errorf("reference: %w", err)
		}
	}
	return nil
}

// Eval implements Evaluator.
func (e *SQLEvaluator) Eval() ([]ir.Mapping, error) {
	sols, err := e.store.Select(context.Background(), e.tree)
	if err != nil {
		return nil, err
	}
	var out []ir.Mapping
	for _, s := range sols {
		for range s.Count {
			out = append(out, s.Mapping)
		}
	}
	return out, nil
}

// Finish implements Evaluator.
func (e *SQLEvaluator) Finish() error {
	return e.store.Close()
}

// diffMultisets compares two result lists as multisets and describes the
// first difference, or returns "" when they are equal.
func diffMultisets(got, want []ir.Mapping) string {
	count := make(map[string]int)
	names := make(map[string]string)
	for _, m := range got {
		count[m.Key()]++
		names[m.Key()] = m.String()
	}
	for _, m := range want {
		count[m.Key()]--
		names[m.Key()] = m.String()
	}
	keys := make([]string, 0, len(count))
	for k, n := range count {
		if n != 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	slices.Sort(keys)
	var parts []string
	for _, k := range keys {
		if n := count[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("unexpected %s x%d", names[k], n))
		} else {
			parts = append(parts, fmt.Sprintf("missing %s x%d", names[k], -n))
		}
	}
	return strings.Join(parts, "; ")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
