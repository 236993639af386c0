package engine

import (
	"fmt"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// pathIndex is the reachability state of one step predicate.
type pathIndex struct {
	pred  int32
	conn  *Connections
	nodes map[int32]int
}

// repeatingRule matches a triple pattern whose predicate is p* or p+.
//
// Rows have set semantics: a (subject, object) pair is present once while
// it is visible, however many paths connect it. A pair is visible when a
// path of one or more steps connects it, or, for p*, when subject and object
// are the same node of the graph. For a fixed step the nodes are every
// subject and object of the stored data; for a variable step they are the
// endpoints of that predicate's edges.
type repeatingRule struct {
	ruleBase
	subj, obj slot
	zero      bool
	step      ir.NamedTerm
	stepVar   int
	indexes   map[ir.NamedTerm]*pathIndex
}

func newRepeatingRule(ctx *QueryContext, kind rowKind, tp queryir.TriplePattern, step queryir.Predicate, zero bool) *repeatingRule {
	r := &repeatingRule{
		ruleBase: newRuleBase(ctx, kind, tp, true),
		subj:     compileSlot(ctx, tp.Subject),
		obj:      compileSlot(ctx, tp.Object),
		zero:     zero,
		stepVar:  -1,
		indexes:  make(map[ir.NamedTerm]*pathIndex),
	}
	switch s := step.(type) {
	case queryir.Exact:
		r.step = s.Term.(ir.NamedTerm)
	case queryir.Var:
		r.stepVar = ctx.Binding(s.Name)
	default:
		panic("engine: unvalidated path step")
	}
	return r
}

func (r *repeatingRule) index(p ir.NamedTerm) *pathIndex {
	idx, ok := r.indexes[p]
	if !ok {
		idx = &pathIndex{pred: r.ctx.Term(p), conn: NewConnections(), nodes: make(map[int32]int)}
		r.indexes[p] = idx
	}
	return idx
}

// Connections returns the reachability index of step predicate p, or nil
// when no edge of p was ever seen.
func (r *repeatingRule) Connections(p ir.NamedTerm) *Connections {
	if idx, ok := r.indexes[p]; ok {
		return idx.conn
	}
	return nil
}

func (r *repeatingRule) probe(d ir.DataDelta) []change {
	q := d.Quad
	var idx *pathIndex
	edge := true
	if r.stepVar < 0 {
		edge = q.Predicate == r.step
		if !edge && !r.zero {
			return nil
		}
		idx = r.index(r.step)
	} else {
		idx = r.index(q.Predicate)
	}

	s, o := r.ctx.Term(q.Subject), r.ctx.Term(q.Object)
	var vis []Pair
	var sign int
	if d.Kind == ir.Addition {
		sign = 1
		vis = r.insert(idx, s, o, edge)
	} else {
		sign = -1
		vis = r.delete(idx, s, o, edge)
	}

	var out []change
	for _, p := range vis {
		if m, ok := r.rowFor(idx, p); ok {
			out = append(out, change{row: m, n: sign})
		}
	}
	return out
}

func (r *repeatingRule) endpoints(s, o int32) []int32 {
	if s == o {
		return []int32{s}
	}
	return []int32{s, o}
}

// insert returns the pairs that became visible.
func (r *repeatingRule) insert(idx *pathIndex, s, o int32, edge bool) []Pair {
	var vis []Pair
	if r.zero {
		for _, t := range r.endpoints(s, o) {
			idx.nodes[t]++
			if idx.nodes[t] == 1 && !idx.conn.Reachable(t, t) {
				vis = append(vis, Pair{t, t})
			}
		}
	}
	if edge {
		for _, p := range idx.conn.AddEdge(s, o) {
			if r.zero && p.From == p.To && idx.nodes[p.From] > 0 {
				continue
			}
			vis = append(vis, p)
		}
	}
	return vis
}

// delete returns the pairs that stopped being visible.
func (r *repeatingRule) delete(idx *pathIndex, s, o int32, edge bool) []Pair {
	var vis []Pair
	if edge {
		for _, p := range idx.conn.RemoveEdge(s, o) {
			if r.zero && p.From == p.To && idx.nodes[p.From] > 0 {
				continue
			}
			vis = append(vis, p)
		}
	}
	if r.zero {
		for _, t := range r.endpoints(s, o) {
			n, ok := idx.nodes[t]
			if !ok {
				panic(NewUnderflowError(r.st.Pattern, fmt.Sprintf("node %d removed but not present", t)))
			}
			if n > 1 {
				idx.nodes[t] = n - 1
				continue
			}
			delete(idx.nodes, t)
			if !idx.conn.Reachable(t, t) {
				vis = append(vis, Pair{t, t})
			}
		}
	}
	return vis
}

// rowFor binds a visible pair through the pattern's endpoint slots.
func (r *repeatingRule) rowFor(idx *pathIndex, p Pair) (row, bool) {
	if r.subj.binding < 0 && r.ctx.TermOf(p.From) != r.subj.exact {
		return nil, false
	}
	if r.obj.binding < 0 && r.ctx.TermOf(p.To) != r.obj.exact {
		return nil, false
	}
	out := r.kind.empty()
	var ok bool
	if out, ok = r.subj.bind(out, p.From); !ok {
		return nil, false
	}
	if out, ok = r.obj.bind(out, p.To); !ok {
		return nil, false
	}
	if r.stepVar >= 0 {
		if out, ok = (slot{binding: r.stepVar}).bind(out, idx.pred); !ok {
			return nil, false
		}
	}
	return out, true
}
