// Package querysql compiles basic graph patterns to parameterized SQL over
// the store's quads and terms tables.
//
// The compiled statement evaluates a query from scratch; the store uses it
// for one-shot snapshots and to cross-check incremental results.
package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// ErrUnsupported is returned for query shapes that have no single-statement
// SQL form: property paths, filters, optionals, unions, nested selects and
// computed projections.
var ErrUnsupported = errors.New("querysql: unsupported query shape")

// Statement is a compiled query.
//
// Each result row holds the term text of every entry of Vars followed by
// the row's multiplicity.
type Statement struct {
	SQL    string
	Params []any
	Vars   []string
}

// SQLCompiler compiles queries to SQLite.
//
// CRITICAL: every statement ends with ORDER BY ... COLLATE BINARY so that
// snapshots are deterministic.
// CRITICAL: terms are always parameterized, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// column is the first quads column a variable appears in.
type column struct {
	name string
	col  string
}

type builder struct {
	where  []string
	params []any
	first  map[string]string
	vars   []column
}

// Compile converts a query whose body is a plain basic graph pattern.
// Bag semantics are kept: the multiplicity of a row is the product of the
// stored counts of the quads it was built from, summed over projected-away
// variables. Under DISTINCT every row has multiplicity one.
func (c *SQLCompiler) Compile(q *queryir.Query) (Statement, error) {
	if q == nil {
		return Statement{}, fmt.Errorf("cannot compile nil query")
	}
	body := q.Body
	if len(body.Filters) > 0 || len(body.Optionals) > 0 || len(body.Unions) > 0 || len(body.Segments) > 0 {
		return Statement{}, fmt.Errorf("%w: body is not a basic graph pattern", ErrUnsupported)
	}
	for _, p := range q.Projection {
		if p.Expr != nil {
			return Statement{}, fmt.Errorf("%w: computed projection ?%s", ErrUnsupported, p.Name)
		}
	}
	if len(body.Triples) == 0 {
		return Statement{SQL: "SELECT 1 AS weight"}, nil
	}

	b := &builder{first: make(map[string]string)}
	from := make([]string, len(body.Triples))
	for i, tp := range body.Triples {
		alias := fmt.Sprintf("q%d", i)
		from[i] = "quads " + alias
		if err := b.triple(alias, tp); err != nil {
			return Statement{}, fmt.Errorf("triple %d: %w", i, err)
		}
		b.scope(alias, q)
	}

	out := b.vars
	if len(q.Projection) > 0 {
		out = out[:0:0]
		for _, p := range q.Projection {
			col, ok := b.first[p.Name]
			if !ok {
				return Statement{}, fmt.Errorf("projected variable ?%s is not bound by the pattern", p.Name)
			}
			out = append(out, column{name: p.Name, col: col})
		}
	}

	var (
		sel, group, order []string
		stmt              Statement
	)
	for i, v := range out {
		alias := fmt.Sprintf("t%d", i)
		from = append(from, "terms "+alias)
		b.where = append(b.where, fmt.Sprintf("%s.id = %s", alias, v.col))
		sel = append(sel, fmt.Sprintf("%s.text AS v%d", alias, i))
		group = append(group, fmt.Sprintf("v%d", i))
		order = append(order, fmt.Sprintf("v%d COLLATE BINARY ASC", i))
		stmt.Vars = append(stmt.Vars, v.name)
	}

	weight := make([]string, len(body.Triples))
	for i := range body.Triples {
		weight[i] = fmt.Sprintf("q%d.count", i)
	}
	if q.Distinct {
		sel = append(sel, "MIN(1) AS weight")
	} else {
		sel = append(sel, "SUM("+strings.Join(weight, " * ")+") AS weight")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(sel, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(strings.Join(from, ", "))
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if len(group) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(group, ", "))
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(order, ", "))
	}
	stmt.SQL = sb.String()
	stmt.Params = b.params
	return stmt, nil
}

func (b *builder) triple(alias string, tp queryir.TriplePattern) error {
	if err := b.position(alias+".s", tp.Subject); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	switch p := tp.Predicate.(type) {
	case queryir.Exact:
		if err := b.position(alias+".p", p); err != nil {
			return fmt.Errorf("predicate: %w", err)
		}
	case queryir.Var:
		b.variable(alias+".p", p.Name)
	case queryir.Alts:
		b.where = append(b.where, alias+".p IN "+b.termSet(p.IRIs))
	case queryir.Negated:
		b.where = append(b.where, alias+".p NOT IN "+b.termSet(p.IRIs))
	case queryir.ZeroOrMore, queryir.OneOrMore:
		return fmt.Errorf("%w: property path in %s", ErrUnsupported, tp)
	default:
		return fmt.Errorf("unsupported predicate type: %T", tp.Predicate)
	}
	if err := b.position(alias+".o", tp.Object); err != nil {
		return fmt.Errorf("object: %w", err)
	}
	return nil
}

func (b *builder) position(col string, p queryir.Position) error {
	switch v := p.(type) {
	case queryir.Exact:
		if v.Term == nil {
			return fmt.Errorf("nil term")
		}
		b.where = append(b.where, col+" = (SELECT id FROM terms WHERE text = ?)")
		b.params = append(b.params, v.Term.String())
	case queryir.Var:
		b.variable(col, v.Name)
	default:
		return fmt.Errorf("unsupported position type: %T", p)
	}
	return nil
}

// variable binds name at col, or constrains col to its first occurrence.
func (b *builder) variable(col, name string) {
	if prev, ok := b.first[name]; ok {
		b.where = append(b.where, col+" = "+prev)
		return
	}
	b.first[name] = col
	b.vars = append(b.vars, column{name: name, col: col})
}

// termSet renders "(SELECT id FROM terms WHERE text IN (?, ?))".
func (b *builder) termSet(iris []ir.NamedTerm) string {
	if len(iris) == 0 {
		return "(SELECT id FROM terms WHERE 1 = 0)"
	}
	marks := make([]string, len(iris))
	for i, t := range iris {
		marks[i] = "?"
		b.params = append(b.params, t.String())
	}
	return "(SELECT id FROM terms WHERE text IN (" + strings.Join(marks, ", ") + "))"
}

func (b *builder) scope(alias string, q *queryir.Query) {
	switch q.EffectiveScope() {
	case queryir.ScopeDefault:
		b.where = append(b.where, alias+".g = (SELECT id FROM terms WHERE text = ?)")
		b.params = append(b.params, ir.DefaultGraph{}.String())
	case queryir.ScopeNamed:
		if len(q.Graphs) == 0 {
			b.where = append(b.where, "1 = 0")
			return
		}
		marks := make([]string, len(q.Graphs))
		for i, g := range q.Graphs {
			marks[i] = "?"
			if g == nil {
				g = ir.DefaultGraph{}
			}
			b.params = append(b.params, g.String())
		}
		b.where = append(b.where, alias+".g IN (SELECT id FROM terms WHERE text IN ("+strings.Join(marks, ", ")+"))")
	}
}
