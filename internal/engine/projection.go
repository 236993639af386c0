package engine

import (
	"fmt"

	"github.com/roach88/sparqlflow/internal/queryir"
)

type computedBinding struct {
	binding int
	eval    evalFn
}

// projection restricts rows to a SELECT list. Plain variables are copied;
// computed expressions are evaluated in list order, each seeing the
// bindings computed before it. A computed expression that errors leaves
// its binding unbound.
type projection struct {
	ctx      *QueryContext
	kind     rowKind
	keep     []int
	computed []computedBinding
}

func newProjection(ctx *QueryContext, kind rowKind, q *queryir.Query) (*projection, error) {
	p := &projection{ctx: ctx, kind: kind}
	if len(q.Projection) == 0 {
		for _, name := range q.OutputNames() {
			p.keep = append(p.keep, ctx.Binding(name))
		}
		return p, nil
	}
	for _, item := range q.Projection {
		b := ctx.Binding(item.Name)
		if item.Expr == nil {
			p.keep = append(p.keep, b)
			continue
		}
		f, err := compileExpr(ctx, item.Expr)
		if err != nil {
			return nil, fmt.Errorf("projection %s: %w", item.Name, err)
		}
		p.computed = append(p.computed, computedBinding{binding: b, eval: f})
	}
	return p, nil
}

func (p *projection) row(r row) row {
	out := projectRow(p.kind, r, p.keep)
	src := r
	for _, c := range p.computed {
		t, err := c.eval(src)
		if err != nil {
			continue
		}
		id := p.ctx.Term(t)
		out = out.with(c.binding, id)
		src = src.with(c.binding, id)
	}
	return out
}

func (p *projection) apply(cs []change) []change {
	if len(cs) == 0 {
		return nil
	}
	out := make([]change, len(cs))
	for i, c := range cs {
		out[i] = change{row: p.row(c.row), n: c.n}
	}
	return consolidate(out)
}
