package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// Prepare validates a query tree and compiles it into a Query whose results
// reflect an empty store.
//
// Compilation order for a group is: the basic graph pattern of its
// triples, joined with its unions, then its nested selects; then each
// optional as a left join; then its filters. A group without triples
// starts from its first union or nested select. A group with nothing at all
// yields the single empty mapping.
func Prepare(q *queryir.Query, opts ...Option) (*Query, error) {
	if q == nil {
		return nil, errors.New("prepare: nil query")
	}
	if errs := queryir.Validate(q); len(errs) > 0 {
		return nil, newInvalidQueryError(errs)
	}
	cfg := newConfig(opts)

	ctx := NewQueryContext()
	for _, name := range queryNames(q) {
		ctx.Binding(name)
	}
	kind := chooseRowKind(ctx.NumBindings(), cfg.bitsetThreshold)
	b := &builder{ctx: ctx, kind: kind}

	root, err := b.group(q.Body)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	proj, err := newProjection(ctx, kind, q)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	order, err := b.ordering(q.OrderBy)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}

	id := cfg.ids.Generate()
	query := &Query{
		id:       id,
		tree:     q,
		ctx:      ctx,
		kind:     kind,
		root:     root,
		proj:     proj,
		networks: b.networks,
		scope:    newDatasetScope(q),
		results:  newResults(id, q.Distinct, order),
		clock:    cfg.clock,
		logger:   cfg.logger,
		onChange: cfg.onChange,
	}
	query.materialize(proj.apply(root.init()), ir.Origin{})

	cfg.logger.Debug("query prepared",
		"query", id,
		"row_kind", kind.String(),
		"bindings", ctx.NumBindings(),
		"rules", len(query.ruleStats()),
	)
	return query, nil
}

// queryNames returns every variable name a query tree can bind or read,
// including nested selects, computed projections and EXISTS patterns, in
// sorted order.
func queryNames(q *queryir.Query) []string {
	set := map[string]struct{}{}
	collectQueryNames(q, set)
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func collectQueryNames(q *queryir.Query, set map[string]struct{}) {
	for _, n := range q.OutputNames() {
		set[n] = struct{}{}
	}
	for _, p := range q.Projection {
		if p.Expr != nil {
			addAll(set, queryir.ExprVariables(p.Expr))
		}
	}
	for _, k := range q.OrderBy {
		addAll(set, queryir.ExprVariables(k.Expr))
	}
	collectGroupNames(q.Body, set)
}

func collectGroupNames(g queryir.GraphPattern, set map[string]struct{}) {
	addAll(set, g.TripleVariables())
	for _, f := range g.Filters {
		switch v := f.(type) {
		case queryir.ExprFilter:
			addAll(set, queryir.ExprVariables(v.Expr))
		case queryir.Exists:
			collectGroupNames(v.Pattern, set)
		case queryir.NotExists:
			collectGroupNames(v.Pattern, set)
		}
	}
	for _, u := range g.Unions {
		for _, br := range u.Branches {
			collectGroupNames(br, set)
		}
	}
	for _, o := range g.Optionals {
		collectGroupNames(o, set)
	}
	for _, s := range g.Segments {
		collectQueryNames(s, set)
	}
}

func addAll(set map[string]struct{}, names []string) {
	for _, n := range names {
		set[n] = struct{}{}
	}
}

// builder compiles groups into operator trees sharing one QueryContext.
type builder struct {
	ctx      *QueryContext
	kind     rowKind
	networks []*Network
}

func (b *builder) network(triples []queryir.TriplePattern) *Network {
	n := newNetwork(b.ctx, b.kind, triples)
	b.networks = append(b.networks, n)
	return n
}

func (b *builder) group(g queryir.GraphPattern) (node, error) {
	var parts []node
	if len(g.Triples) > 0 || (len(g.Unions) == 0 && len(g.Segments) == 0) {
		parts = append(parts, b.network(g.Triples))
	}
	for _, u := range g.Unions {
		un := &unionNode{}
		for _, br := range u.Branches {
			n, err := b.group(br)
			if err != nil {
				return nil, err
			}
			un.branches = append(un.branches, n)
		}
		parts = append(parts, un)
	}
	for _, s := range g.Segments {
		n, err := b.segment(s)
		if err != nil {
			return nil, err
		}
		parts = append(parts, n)
	}

	cur := parts[0]
	for _, p := range parts[1:] {
		cur = newJoinNode(cur, p)
	}

	for _, o := range g.Optionals {
		inner, conds := splitOptional(o)
		right, err := b.group(inner)
		if err != nil {
			return nil, err
		}
		var cond predicate
		if len(conds) > 0 {
			ps := make([]predicate, len(conds))
			for i, e := range conds {
				if ps[i], err = compilePredicate(b.ctx, e); err != nil {
					return nil, err
				}
			}
			cond = allOf(ps)
		}
		cur = newOptionalNode(cur, right, cond)
	}

	for _, f := range g.Filters {
		switch v := f.(type) {
		case queryir.ExprFilter:
			test, err := compilePredicate(b.ctx, v.Expr)
			if err != nil {
				return nil, err
			}
			cur = &filterNode{child: cur, test: test}
		case queryir.Exists:
			inner, err := b.group(pullIn(v.Pattern, g.Triples))
			if err != nil {
				return nil, err
			}
			cur = newExistsNode(cur, inner, false)
		case queryir.NotExists:
			inner, err := b.group(pullIn(v.Pattern, g.Triples))
			if err != nil {
				return nil, err
			}
			cur = newExistsNode(cur, inner, true)
		}
	}
	return cur, nil
}

func (b *builder) segment(q *queryir.Query) (node, error) {
	child, err := b.group(q.Body)
	if err != nil {
		return nil, err
	}
	proj, err := newProjection(b.ctx, b.kind, q)
	if err != nil {
		return nil, err
	}
	return &segmentNode{child: child, proj: proj, distinct: q.Distinct, counts: newZSet()}, nil
}

// splitOptional separates an optional group's top-level expression filters,
// which condition the left join, from the rest of the group.
func splitOptional(g queryir.GraphPattern) (queryir.GraphPattern, []queryir.Expr) {
	var conds []queryir.Expr
	var rest []queryir.Filter
	for _, f := range g.Filters {
		if ef, ok := f.(queryir.ExprFilter); ok {
			conds = append(conds, ef.Expr)
			continue
		}
		rest = append(rest, f)
	}
	g.Filters = rest
	return g, conds
}

// pullIn copies into an EXISTS pattern the outer triples that bind
// variables its filters read but its own pattern does not bind.
func pullIn(inner queryir.GraphPattern, outer []queryir.TriplePattern) queryir.GraphPattern {
	bound := map[string]struct{}{}
	addAll(bound, inner.Variables())
	need := map[string]struct{}{}
	for _, n := range queryir.FilterVariables(queryir.Exists{Pattern: inner}) {
		if _, ok := bound[n]; !ok {
			need[n] = struct{}{}
		}
	}
	if len(need) == 0 {
		return inner
	}
	var extra []queryir.TriplePattern
	for _, tp := range outer {
		for _, n := range tp.Variables() {
			if _, ok := need[n]; ok {
				extra = append(extra, tp)
				break
			}
		}
	}
	triples := make([]queryir.TriplePattern, 0, len(extra)+len(inner.Triples))
	triples = append(triples, extra...)
	triples = append(triples, inner.Triples...)
	inner.Triples = triples
	return inner
}

// ordering compiles ORDER BY keys into a mapping comparator. Keys that fail
// to evaluate sort as unbound.
func (b *builder) ordering(keys []queryir.OrderKey) (func(a, c ir.Mapping) int, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	fns := make([]evalFn, len(keys))
	for i, k := range keys {
		f, err := compileExpr(b.ctx, k.Expr)
		if err != nil {
			return nil, fmt.Errorf("order by %d: %w", i, err)
		}
		fns[i] = f
	}
	return func(x, y ir.Mapping) int {
		rx, ry := b.ctx.rowOf(b.kind, x), b.ctx.rowOf(b.kind, y)
		for i, f := range fns {
			tx, err := f(rx)
			if err != nil {
				tx = nil
			}
			ty, err := f(ry)
			if err != nil {
				ty = nil
			}
			c := compareOrder(tx, ty)
			if keys[i].Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}, nil
}
