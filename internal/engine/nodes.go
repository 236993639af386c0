package engine

import "github.com/roach88/sparqlflow/internal/ir"

// node is one operator of a compiled query.
//
// init returns the operator's output over the empty store, and apply the
// change to that output caused by one data delta. Both return weighted
// rows; a node that keeps state updates it before returning.
type node interface {
	init() []change
	apply(d ir.DataDelta) []change
}

// joinNode is the natural join of two operators. Both inputs are cached so
// that either side's changes can be joined against the other.
type joinNode struct {
	left, right node
	lc, rc      *zset
}

func newJoinNode(left, right node) *joinNode {
	return &joinNode{left: left, right: right, lc: newZSet(), rc: newZSet()}
}

func (j *joinNode) init() []change {
	l, r := j.left.init(), j.right.init()
	j.lc.apply(l, "join")
	j.rc.apply(r, "join")
	return consolidate(joinChanges(l, j.rc))
}

// apply computes dL⋈R + L'⋈dR, where L' already includes dL.
func (j *joinNode) apply(d ir.DataDelta) []change {
	dl, dr := j.left.apply(d), j.right.apply(d)
	out := joinChanges(dl, j.rc)
	j.lc.apply(dl, "join")
	out = append(out, joinChanges(dr, j.lc)...)
	j.rc.apply(dr, "join")
	return consolidate(out)
}

// unionNode is bag union.
type unionNode struct {
	branches []node
}

func (u *unionNode) init() []change {
	var out []change
	for _, b := range u.branches {
		out = append(out, b.init()...)
	}
	return consolidate(out)
}

func (u *unionNode) apply(d ir.DataDelta) []change {
	var out []change
	for _, b := range u.branches {
		out = append(out, b.apply(d)...)
	}
	return consolidate(out)
}

// filterNode keeps the rows satisfying a condition. It holds no state.
type filterNode struct {
	child node
	test  predicate
}

func (f *filterNode) keep(cs []change) []change {
	out := cs[:0:0]
	for _, c := range cs {
		if f.test(c.row) {
			out = append(out, c)
		}
	}
	return out
}

func (f *filterNode) init() []change { return f.keep(f.child.init()) }

func (f *filterNode) apply(d ir.DataDelta) []change { return f.keep(f.child.apply(d)) }

// existsNode is a semi-join (EXISTS) or anti-join (NOT EXISTS).
//
// An outer row passes when the number of compatible inner rows is positive
// (EXISTS) or zero (NOT EXISTS). A delta can change the outcome for outer
// rows it touches directly and for outer rows compatible with any inner
// row it touches; only those are re-evaluated.
type existsNode struct {
	outer, inner node
	negate       bool
	oc, ic       *zset
}

func newExistsNode(outer, inner node, negate bool) *existsNode {
	return &existsNode{outer: outer, inner: inner, negate: negate, oc: newZSet(), ic: newZSet()}
}

func (e *existsNode) passes(r row) bool {
	n := e.ic.compatibleCount(r)
	if e.negate {
		return n == 0
	}
	return n > 0
}

func (e *existsNode) contribution(r row) int {
	n := e.oc.count(r)
	if n == 0 || !e.passes(r) {
		return 0
	}
	return n
}

func (e *existsNode) init() []change {
	e.oc.apply(e.outer.init(), "exists")
	e.ic.apply(e.inner.init(), "exists")
	var out []change
	e.oc.each(func(r row, n int) {
		if e.passes(r) {
			out = append(out, change{row: r, n: n})
		}
	})
	return out
}

func (e *existsNode) apply(d ir.DataDelta) []change {
	do, di := e.outer.apply(d), e.inner.apply(d)
	if len(do) == 0 && len(di) == 0 {
		return nil
	}
	affected := newRowSet()
	for _, c := range do {
		affected.add(c.row)
	}
	for _, c := range di {
		e.oc.compatibleWith(c.row, func(r row, _ int) {
			affected.add(r)
		})
	}

	before := make([]int, len(affected.rows))
	for i, r := range affected.rows {
		before[i] = e.contribution(r)
	}
	e.oc.apply(do, "exists")
	e.ic.apply(di, "exists")

	var out []change
	for i, r := range affected.rows {
		if n := e.contribution(r) - before[i]; n != 0 {
			out = append(out, change{row: r, n: n})
		}
	}
	return out
}

// optionalNode is a left outer join. A left row is merged with every
// compatible right row satisfying cond; a left row with no such partner is
// kept alone. A delta on either side re-derives the output of the left rows
// it can affect, as a before/after difference.
type optionalNode struct {
	left, right node
	cond        predicate
	lc, rc      *zset
}

func newOptionalNode(left, right node, cond predicate) *optionalNode {
	return &optionalNode{left: left, right: right, cond: cond, lc: newZSet(), rc: newZSet()}
}

// extend returns the output derived from left row l with multiplicity n.
func (o *optionalNode) extend(l row, n int) []change {
	if n == 0 {
		return nil
	}
	var out []change
	o.rc.compatibleWith(l, func(r row, m int) {
		merged := l.merge(r)
		if o.cond == nil || o.cond(merged) {
			out = append(out, change{row: merged, n: n * m})
		}
	})
	if len(out) == 0 {
		return []change{{row: l, n: n}}
	}
	return out
}

func (o *optionalNode) init() []change {
	o.lc.apply(o.left.init(), "optional")
	o.rc.apply(o.right.init(), "optional")
	var out []change
	o.lc.each(func(l row, n int) {
		out = append(out, o.extend(l, n)...)
	})
	return consolidate(out)
}

func (o *optionalNode) apply(d ir.DataDelta) []change {
	dl, dr := o.left.apply(d), o.right.apply(d)
	if len(dl) == 0 && len(dr) == 0 {
		return nil
	}
	affected := newRowSet()
	for _, c := range dl {
		affected.add(c.row)
	}
	for _, c := range dr {
		o.lc.compatibleWith(c.row, func(l row, _ int) {
			affected.add(l)
		})
	}

	var out []change
	for _, l := range affected.rows {
		out = append(out, negate(o.extend(l, o.lc.count(l)))...)
	}
	o.lc.apply(dl, "optional")
	o.rc.apply(dr, "optional")
	for _, l := range affected.rows {
		out = append(out, o.extend(l, o.lc.count(l))...)
	}
	return consolidate(out)
}

// segmentNode evaluates a nested SELECT: its body, then its projection,
// then DISTINCT when requested.
type segmentNode struct {
	child    node
	proj     *projection
	distinct bool
	counts   *zset
}

func (s *segmentNode) init() []change {
	return s.dedupe(s.proj.apply(s.child.init()))
}

func (s *segmentNode) apply(d ir.DataDelta) []change {
	return s.dedupe(s.proj.apply(s.child.apply(d)))
}

// dedupe tracks row counts and emits a row once while its count is
// positive.
func (s *segmentNode) dedupe(cs []change) []change {
	if !s.distinct {
		return cs
	}
	var out []change
	for _, c := range cs {
		before := s.counts.count(c.row)
		after := s.counts.mustAdd(c.row, c.n, "distinct")
		switch {
		case before == 0 && after > 0:
			out = append(out, change{row: c.row, n: 1})
		case before > 0 && after == 0:
			out = append(out, change{row: c.row, n: -1})
		}
	}
	return out
}

// rowSet is an insertion-ordered set of rows.
type rowSet struct {
	seen map[string]struct{}
	rows []row
}

func newRowSet() *rowSet {
	return &rowSet{seen: make(map[string]struct{})}
}

func (s *rowSet) add(r row) {
	k := r.key()
	if _, ok := s.seen[k]; ok {
		return
	}
	s.seen[k] = struct{}{}
	s.rows = append(s.rows, r)
}
