package engine

import (
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// predicateMode is the kind of a non-repeating predicate.
type predicateMode uint8

const (
	predExact predicateMode = iota + 1
	predVar
	predAlts
	predNegated
)

// regularRule matches a triple pattern with a non-repeating predicate.
// Its cache holds every row derived from a currently stored matching quad,
// counted once per stored occurrence.
type regularRule struct {
	ruleBase
	subj, obj slot
	mode      predicateMode
	pred      ir.NamedTerm
	predVar   int
	set       map[ir.NamedTerm]struct{}
}

func newRegularRule(ctx *QueryContext, kind rowKind, tp queryir.TriplePattern) *regularRule {
	r := &regularRule{
		ruleBase: newRuleBase(ctx, kind, tp, false),
		subj:     compileSlot(ctx, tp.Subject),
		obj:      compileSlot(ctx, tp.Object),
		predVar:  -1,
	}
	switch p := tp.Predicate.(type) {
	case queryir.Exact:
		r.mode = predExact
		r.pred = p.Term.(ir.NamedTerm)
	case queryir.Var:
		r.mode = predVar
		r.predVar = ctx.Binding(p.Name)
	case queryir.Alts:
		r.mode = predAlts
		r.set = iriSet(p.IRIs)
	case queryir.Negated:
		r.mode = predNegated
		r.set = iriSet(p.IRIs)
	default:
		panic("engine: unvalidated predicate")
	}
	return r
}

func iriSet(iris []ir.NamedTerm) map[ir.NamedTerm]struct{} {
	set := make(map[ir.NamedTerm]struct{}, len(iris))
	for _, n := range iris {
		set[n] = struct{}{}
	}
	return set
}

func (r *regularRule) acceptsPredicate(p ir.NamedTerm) bool {
	switch r.mode {
	case predExact:
		return p == r.pred
	case predVar:
		return true
	case predAlts:
		_, ok := r.set[p]
		return ok
	case predNegated:
		_, ok := r.set[p]
		return !ok
	default:
		return false
	}
}

// match builds the row a quad contributes, or reports false.
// Terms are interned only once the quad is known to match.
func (r *regularRule) match(q ir.Quad) (row, bool) {
	if !r.subj.accepts(q.Subject) || !r.obj.accepts(q.Object) || !r.acceptsPredicate(q.Predicate) {
		return nil, false
	}
	// A variable repeated across slots must see equal terms.
	if r.subj.binding >= 0 && r.subj.binding == r.obj.binding && q.Subject != q.Object {
		return nil, false
	}
	if r.predVar >= 0 {
		if r.predVar == r.subj.binding && q.Subject != ir.Term(q.Predicate) {
			return nil, false
		}
		if r.predVar == r.obj.binding && q.Object != ir.Term(q.Predicate) {
			return nil, false
		}
	}

	out := r.kind.empty()
	out, _ = r.subj.bind(out, r.termID(r.subj, q.Subject))
	if r.predVar >= 0 {
		out, _ = slot{binding: r.predVar}.bind(out, r.ctx.Term(q.Predicate))
	}
	out, _ = r.obj.bind(out, r.termID(r.obj, q.Object))
	return out, true
}

func (r *regularRule) termID(s slot, t ir.Term) int32 {
	if s.binding < 0 {
		return 0
	}
	return r.ctx.Term(t)
}

func (r *regularRule) probe(d ir.DataDelta) []change {
	m, ok := r.match(d.Quad)
	if !ok {
		return nil
	}
	return []change{{row: m, n: d.Kind.Sign()}}
}
