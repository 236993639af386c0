package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// Query is a prepared SELECT whose results are kept current as data deltas
// arrive.
//
// A Query processes one delta at a time; the mutex only guards against a
// source calling listener methods from several goroutines. Queries share
// no state with each other.
type Query struct {
	mu sync.Mutex

	id       string
	tree     *queryir.Query
	ctx      *QueryContext
	kind     rowKind
	root     node
	proj     *projection
	networks []*Network
	scope    datasetScope
	results  *Results
	clock    *Clock
	logger   *slog.Logger
	onChange ChangeHandler

	deltas  int64
	ignored int64
}

// ID returns the query id.
func (q *Query) ID() string {
	return q.id
}

// Tree returns the query tree the query was prepared from.
func (q *Query) Tree() *queryir.Query {
	return q.tree
}

// Process applies one delta and returns the result changes it caused,
// sorted by mapping then kind (removals first).
//
// Only data deltas are accepted; a BindingsDelta yields an
// UNSUPPORTED_DELTA RuntimeError. A delta without a sequence number is
// stamped from the query's clock. A quad outside the dataset scope changes
// nothing. Retracting data that was never added panics with a count
// underflow.
func (q *Query) Process(d ir.Delta) ([]ResultChange, error) {
	dd, ok := d.(ir.DataDelta)
	if !ok {
		return nil, &RuntimeError{
			Code:    ErrCodeUnsupportedDelta,
			Message: fmt.Sprintf("cannot process %T", d),
			QueryID: q.id,
		}
	}
	dd.Quad = dd.Quad.Normalize()
	if err := dd.Quad.Validate(); err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.process(dd), nil
}

func (q *Query) process(d ir.DataDelta) []ResultChange {
	if d.Seq == 0 {
		d.Seq = q.clock.Next()
	}
	if !q.scope.accepts(d.Quad) {
		q.ignored++
		return nil
	}
	q.deltas++

	changes := q.materialize(q.proj.apply(q.root.apply(d)), ir.OriginOf(d))
	q.logger.Debug("delta processed",
		"query", q.id,
		"seq", d.Seq,
		"kind", d.Kind.String(),
		"changes", len(changes),
	)
	return changes
}

// materialize folds projected rows into the result counts and returns one
// change per occurrence. Under DISTINCT only the first occurrence and the
// loss of the last one are reported.
func (q *Query) materialize(cs []change, origin ir.Origin) []ResultChange {
	var out []ResultChange
	for _, c := range cs {
		m := q.ctx.mapping(c.row)
		before, after := q.results.add(m, c.n)
		kind, n := New, c.n
		if n < 0 {
			kind, n = Removed, -n
		}
		if q.results.distinct {
			if (before == 0) == (after == 0) {
				continue
			}
			n = 1
		}
		for range n {
			out = append(out, ResultChange{Kind: kind, Value: m, Origin: origin})
		}
	}
	slices.SortStableFunc(out, func(a, b ResultChange) int {
		if c := strings.Compare(a.Value.Key(), b.Value.Key()); c != 0 {
			return c
		}
		return int(b.Kind) - int(a.Kind)
	})
	return out
}

// OnQuadAdded implements Listener.
func (q *Query) OnQuadAdded(quad ir.Quad) {
	q.handle(ir.Added(quad))
}

// OnQuadRemoved implements Listener.
func (q *Query) OnQuadRemoved(quad ir.Quad) {
	q.handle(ir.Removed(quad))
}

func (q *Query) handle(d ir.DataDelta) {
	changes, err := q.Process(d)
	if err != nil {
		q.logger.Error("delta rejected",
			"query", q.id,
			"quad", d.Quad.String(),
			"error", err,
		)
		return
	}
	if q.onChange != nil && len(changes) > 0 {
		q.onChange(q.id, changes)
	}
}

// Subscribe replays every quad stored in src, one Addition per stored
// occurrence, then registers the query for live changes. When src
// implements Attacher the two steps are atomic with respect to writes.
func (q *Query) Subscribe(ctx context.Context, src Source) error {
	if a, ok := src.(Attacher); ok {
		if err := a.Attach(ctx, q); err != nil {
			return fmt.Errorf("subscribe %s: %w", q.id, err)
		}
	} else {
		err := src.Each(ctx, func(quad ir.Quad) error {
			_, err := q.Process(ir.Added(quad))
			return err
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", q.id, err)
		}
		src.Register(q)
	}
	q.logger.Info("query subscribed", "query", q.id, "results", q.Len())
	return nil
}

// Unsubscribe stops live updates from src. The results stay as they were.
func (q *Query) Unsubscribe(src Source) {
	src.Unregister(q)
	q.logger.Info("query unsubscribed", "query", q.id)
}

// Results returns a snapshot of the current results.
func (q *Query) Results() []ir.Mapping {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.results.Snapshot()
}

// Count returns the number of occurrences of m in the results.
func (q *Query) Count(m ir.Mapping) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.results.Count(m)
}

// Len returns the number of results in a snapshot.
func (q *Query) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.results.Len()
}

// Networks returns the rule networks of the query, one per group with
// triples, in compilation order.
func (q *Query) Networks() []*Network {
	return q.networks
}

// Stats returns a snapshot of the query's counters.
func (q *Query) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		QueryID:  q.id,
		Deltas:   q.deltas,
		Ignored:  q.ignored,
		RowKind:  q.kind.String(),
		Bindings: q.ctx.NumBindings(),
		Terms:    q.ctx.NumTerms(),
		Results:  q.results.Len(),
		Rules:    q.ruleStats(),
	}
}

func (q *Query) ruleStats() []RuleStats {
	var out []RuleStats
	for _, n := range q.networks {
		out = append(out, n.Stats()...)
	}
	return out
}
