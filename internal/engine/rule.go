package engine

import (
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// rule is the incremental state of one triple pattern.
//
// The network drives a rule in two steps per data delta: probe computes the
// weighted rows the delta adds to or retracts from the rule (updating any
// private index, such as path reachability), and commit folds those rows
// into the cache other rules join against. Between the two steps the cache
// still holds the pre-delta rows.
type rule interface {
	probe(d ir.DataDelta) []change
	commit(cs []change)
	cache() *zset
	vars() []int
	stats() *RuleStats
}

// slot is a compiled subject, object or path-endpoint position.
type slot struct {
	binding int // -1 when the slot is exact
	exact   ir.Term
}

func compileSlot(ctx *QueryContext, p queryir.Position) slot {
	switch v := p.(type) {
	case queryir.Var:
		return slot{binding: ctx.Binding(v.Name)}
	case queryir.Exact:
		return slot{binding: -1, exact: v.Term}
	default:
		panic("engine: unvalidated position")
	}
}

// accepts reports whether the slot can hold t.
func (s slot) accepts(t ir.Term) bool {
	return s.binding >= 0 || s.exact == t
}

// bind extends r with the slot's binding. ok is false when the slot is
// exact and t differs, or when the binding already holds another term.
func (s slot) bind(r row, id int32) (row, bool) {
	if s.binding < 0 {
		return r, true
	}
	if prev, ok := r.get(s.binding); ok {
		return r, prev == id
	}
	return r.with(s.binding, id), true
}

// ruleBase holds the state shared by every rule kind.
type ruleBase struct {
	ctx   *QueryContext
	kind  rowKind
	rows  *zset
	st    RuleStats
	bound []int
}

func newRuleBase(ctx *QueryContext, kind rowKind, tp queryir.TriplePattern, repeating bool) ruleBase {
	bound := make([]int, 0, 3)
	for _, name := range tp.Variables() {
		bound = append(bound, ctx.Binding(name))
	}
	return ruleBase{
		ctx:   ctx,
		kind:  kind,
		rows:  newZSet(),
		st:    RuleStats{Pattern: tp.String(), Repeating: repeating},
		bound: bound,
	}
}

func (b *ruleBase) cache() *zset      { return b.rows }
func (b *ruleBase) vars() []int       { return b.bound }
func (b *ruleBase) stats() *RuleStats { return &b.st }

func (b *ruleBase) commit(cs []change) {
	b.rows.apply(cs, b.st.Pattern)
	b.st.CacheSize = b.rows.distinct()
}

// newRule compiles one triple pattern.
func newRule(ctx *QueryContext, kind rowKind, tp queryir.TriplePattern) rule {
	switch p := tp.Predicate.(type) {
	case queryir.ZeroOrMore:
		return newRepeatingRule(ctx, kind, tp, p.Step, true)
	case queryir.OneOrMore:
		return newRepeatingRule(ctx, kind, tp, p.Step, false)
	default:
		return newRegularRule(ctx, kind, tp)
	}
}
