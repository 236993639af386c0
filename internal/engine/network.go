package engine

import (
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// Network evaluates one basic graph pattern incrementally.
//
// Each triple pattern is a rule with its own cache. For a data delta every
// rule is probed first; then, in pattern order, each rule t that produced
// rows joins them against the caches of all other rules and commits them to
// its own cache. Rules before t have already committed and rules after t
// have not, so the summed joins equal the difference of the full join
// before and after the delta. The same sequence serves additions and
// deletions because deletion rows carry negative weights.
type Network struct {
	ctx   *QueryContext
	kind  rowKind
	rules []rule
}

func newNetwork(ctx *QueryContext, kind rowKind, triples []queryir.TriplePattern) *Network {
	n := &Network{ctx: ctx, kind: kind}
	for _, tp := range triples {
		n.rules = append(n.rules, newRule(ctx, kind, tp))
	}
	return n
}

// NewNetwork compiles a basic graph pattern on its own, for callers that
// want raw binding deltas instead of a full query.
func NewNetwork(triples []queryir.TriplePattern, opts ...Option) *Network {
	cfg := newConfig(opts)
	ctx := NewQueryContext()
	for _, tp := range triples {
		for _, name := range tp.Variables() {
			ctx.Binding(name)
		}
	}
	return newNetwork(ctx, chooseRowKind(ctx.NumBindings(), cfg.bitsetThreshold), triples)
}

// init returns the rows of the pattern over an empty store. Only the empty
// pattern has any: the single empty mapping.
func (n *Network) init() []change {
	if len(n.rules) == 0 {
		return []change{{row: n.kind.empty(), n: 1}}
	}
	return nil
}

func (n *Network) apply(d ir.DataDelta) []change {
	if len(n.rules) == 0 {
		return nil
	}
	deltas := make([][]change, len(n.rules))
	for i, r := range n.rules {
		st := r.stats()
		st.Probes++
		cs := r.probe(d)
		if len(cs) == 0 {
			st.Misses++
			continue
		}
		st.Hits++
		deltas[i] = cs
	}

	var out []change
	for t, dt := range deltas {
		if dt == nil {
			continue
		}
		out = append(out, n.expand(t, dt)...)
		n.rules[t].commit(dt)
	}
	return consolidate(out)
}

// expand joins the delta rows of rule t against every other rule's cache.
func (n *Network) expand(t int, cands []change) []change {
	remaining := make([]int, 0, len(n.rules)-1)
	for j, r := range n.rules {
		if j == t {
			continue
		}
		if r.cache().distinct() == 0 {
			return nil
		}
		remaining = append(remaining, j)
	}
	bound := make(map[int]struct{})
	for _, b := range n.rules[t].vars() {
		bound[b] = struct{}{}
	}
	for len(remaining) > 0 && len(cands) > 0 {
		i := n.pick(remaining, bound)
		j := remaining[i]
		remaining = append(remaining[:i], remaining[i+1:]...)

		st := n.rules[j].stats()
		st.ExpansionsIn += int64(len(cands))
		cands = joinChanges(cands, n.rules[j].cache())
		st.ExpansionsOut += int64(len(cands))
		for _, b := range n.rules[j].vars() {
			bound[b] = struct{}{}
		}
	}
	return cands
}

// pick chooses the next rule to join: one sharing a bound binding first,
// then the smallest cache, then the lowest observed selectivity, then
// pattern order.
func (n *Network) pick(remaining []int, bound map[int]struct{}) int {
	best := 0
	for i := 1; i < len(remaining); i++ {
		if n.before(remaining[i], remaining[best], bound) {
			best = i
		}
	}
	return best
}

func (n *Network) before(a, b int, bound map[int]struct{}) bool {
	sa, sb := n.shares(a, bound), n.shares(b, bound)
	if sa != sb {
		return sa
	}
	ca, cb := n.rules[a].cache().distinct(), n.rules[b].cache().distinct()
	if ca != cb {
		return ca < cb
	}
	xa, xb := n.rules[a].stats().selectivity(), n.rules[b].stats().selectivity()
	if xa != xb {
		return xa < xb
	}
	return a < b
}

func (n *Network) shares(j int, bound map[int]struct{}) bool {
	for _, b := range n.rules[j].vars() {
		if _, ok := bound[b]; ok {
			return true
		}
	}
	return false
}

// Process applies a data delta and returns the binding deltas of the
// pattern, one per occurrence, each carrying the delta's origin.
func (n *Network) Process(d ir.DataDelta) []ir.BindingsDelta {
	d.Quad = d.Quad.Normalize()
	origin := []ir.Origin{ir.OriginOf(d)}
	var out []ir.BindingsDelta
	for _, c := range n.apply(d) {
		kind := ir.Addition
		times := c.n
		if c.n < 0 {
			kind = ir.Deletion
			times = -c.n
		}
		m := n.ctx.mapping(c.row)
		for range times {
			out = append(out, ir.BindingsDelta{Kind: kind, Mapping: m, Origin: origin})
		}
	}
	return out
}

// Stats returns a copy of the per-rule counters in pattern order.
func (n *Network) Stats() []RuleStats {
	out := make([]RuleStats, len(n.rules))
	for i, r := range n.rules {
		out[i] = *r.stats()
	}
	return out
}

// PathsFrom returns the terms reachable from x through the step predicate
// of the repeating rule at index i, sorted by interning order. It returns
// nil when rule i is not repeating or x was never seen.
func (n *Network) PathsFrom(i int, step ir.NamedTerm, x ir.Term) []ir.Term {
	conn, ok := n.connections(i, step)
	if !ok {
		return nil
	}
	id, ok := n.ctx.LookupTerm(x)
	if !ok {
		return nil
	}
	return n.terms(conn.PathsFrom(id))
}

// PathsTo is PathsFrom in the reverse direction.
func (n *Network) PathsTo(i int, step ir.NamedTerm, y ir.Term) []ir.Term {
	conn, ok := n.connections(i, step)
	if !ok {
		return nil
	}
	id, ok := n.ctx.LookupTerm(y)
	if !ok {
		return nil
	}
	return n.terms(conn.PathsTo(id))
}

// PathCount returns the number of distinct first hops from x leading to y.
func (n *Network) PathCount(i int, step ir.NamedTerm, x, y ir.Term) int {
	conn, ok := n.connections(i, step)
	if !ok {
		return 0
	}
	xid, okx := n.ctx.LookupTerm(x)
	yid, oky := n.ctx.LookupTerm(y)
	if !okx || !oky {
		return 0
	}
	return conn.PathCount(xid, yid)
}

func (n *Network) connections(i int, step ir.NamedTerm) (*Connections, bool) {
	if i < 0 || i >= len(n.rules) {
		return nil, false
	}
	rr, ok := n.rules[i].(*repeatingRule)
	if !ok {
		return nil, false
	}
	conn := rr.Connections(step)
	return conn, conn != nil
}

func (n *Network) terms(ids []int32) []ir.Term {
	out := make([]ir.Term, len(ids))
	for i, id := range ids {
		out[i] = n.ctx.TermOf(id)
	}
	return out
}
