package queryir

import (
	"strings"

	"github.com/roach88/sparqlflow/internal/ir"
)

// Position is the subject or object slot of a triple pattern.
//
// Sealed: only Exact and Var implement it.
type Position interface {
	positionNode() // Marker method - seals interface to this package
}

// Predicate is the predicate slot of a triple pattern.
//
// Sealed: Exact, Var, Alts, Negated, ZeroOrMore and OneOrMore implement it.
// ZeroOrMore and OneOrMore are the repeating predicates; every other kind is
// regular.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Exact matches one fixed term. In the predicate slot Term must be a NamedTerm.
type Exact struct {
	Term ir.Term
}

func (Exact) positionNode()  {}
func (Exact) predicateNode() {}

// Var binds the slot to a variable. A variable repeated inside one pattern
// must bind the same term in every slot.
type Var struct {
	Name string
}

func (Var) positionNode()  {}
func (Var) predicateNode() {}

// Alts matches any of the listed predicates: (p|q|r).
type Alts struct {
	IRIs []ir.NamedTerm
}

func (Alts) predicateNode() {}

// Negated matches any predicate not in the set: !(p|q).
type Negated struct {
	IRIs []ir.NamedTerm
}

func (Negated) predicateNode() {}

// ZeroOrMore is the path step*. Step is an Exact or Var predicate.
type ZeroOrMore struct {
	Step Predicate
}

func (ZeroOrMore) predicateNode() {}

// OneOrMore is the path step+. Step is an Exact or Var predicate.
type OneOrMore struct {
	Step Predicate
}

func (OneOrMore) predicateNode() {}

// IsRepeating reports whether p is a property path predicate.
func IsRepeating(p Predicate) bool {
	switch p.(type) {
	case ZeroOrMore, OneOrMore:
		return true
	default:
		return false
	}
}

// TriplePattern is one (subject, predicate, object) pattern.
type TriplePattern struct {
	Subject   Position
	Predicate Predicate
	Object    Position
}

// T builds a TriplePattern. Shorthand for tests and literals.
func T(s Position, p Predicate, o Position) TriplePattern {
	return TriplePattern{Subject: s, Predicate: p, Object: o}
}

// V is shorthand for Var{Name: name}.
func V(name string) Var {
	return Var{Name: name}
}

// E is shorthand for Exact{Term: t}.
func E(t ir.Term) Exact {
	return Exact{Term: t}
}

// String renders the pattern in SPARQL-like syntax.
func (tp TriplePattern) String() string {
	return positionString(tp.Subject) + " " + predicateString(tp.Predicate) + " " + positionString(tp.Object)
}

func positionString(p Position) string {
	switch v := p.(type) {
	case Exact:
		if v.Term == nil {
			return "<nil>"
		}
		return v.Term.String()
	case Var:
		return "?" + v.Name
	default:
		return "<nil>"
	}
}

func predicateString(p Predicate) string {
	switch v := p.(type) {
	case Exact:
		return positionString(v)
	case Var:
		return positionString(v)
	case Alts:
		return "(" + joinIRIs(v.IRIs, "|") + ")"
	case Negated:
		return "!(" + joinIRIs(v.IRIs, "|") + ")"
	case ZeroOrMore:
		return predicateString(v.Step) + "*"
	case OneOrMore:
		return predicateString(v.Step) + "+"
	default:
		return "<nil>"
	}
}

func joinIRIs(iris []ir.NamedTerm, sep string) string {
	parts := make([]string, len(iris))
	for i, n := range iris {
		parts[i] = n.String()
	}
	return strings.Join(parts, sep)
}

// Filter restricts the solutions of a graph pattern.
//
// Sealed: ExprFilter, Exists and NotExists implement it.
type Filter interface {
	filterNode() // Marker method - seals interface to this package
}

// ExprFilter keeps solutions for which Expr evaluates to true. An evaluation
// error counts as false.
type ExprFilter struct {
	Expr Expr
}

func (ExprFilter) filterNode() {}

// Exists keeps solutions for which Pattern has at least one compatible match.
type Exists struct {
	Pattern GraphPattern
}

func (Exists) filterNode() {}

// NotExists keeps solutions for which Pattern has no compatible match.
type NotExists struct {
	Pattern GraphPattern
}

func (NotExists) filterNode() {}

// Union is a list of alternative patterns whose solutions are concatenated.
type Union struct {
	Branches []GraphPattern
}

// GraphPattern is a group graph pattern: the join of its triples, unions and
// nested selects, left-joined with each optional in order, then filtered.
type GraphPattern struct {
	Triples   []TriplePattern
	Filters   []Filter
	Unions    []Union
	Optionals []GraphPattern
	Segments  []*Query
}

// IsEmpty reports whether the pattern has no constituents at all.
func (g GraphPattern) IsEmpty() bool {
	return len(g.Triples) == 0 && len(g.Filters) == 0 && len(g.Unions) == 0 &&
		len(g.Optionals) == 0 && len(g.Segments) == 0
}

// Projection is one output column. A nil Expr projects the variable Name
// as-is; otherwise Name is bound to the value of Expr (SELECT (expr AS ?name)).
type Projection struct {
	Name string
	Expr Expr
}

// OrderKey is one ORDER BY key.
type OrderKey struct {
	Expr       Expr
	Descending bool
}

// Scope selects which graphs of the store a query sees.
type Scope string

const (
	// ScopeUnion sees every graph, default and named. The zero value.
	ScopeUnion Scope = "union"
	// ScopeDefault sees only the default graph.
	ScopeDefault Scope = "default"
	// ScopeNamed sees only the graphs listed in Query.Graphs.
	ScopeNamed Scope = "named"
)

// Query is a SELECT query.
//
// An empty Projection selects every variable in scope of Body (SELECT *).
type Query struct {
	Projection []Projection
	Distinct   bool
	Body       GraphPattern
	GroupBy    []Expr
	Having     []Expr
	OrderBy    []OrderKey
	Graphs     []ir.Term
	Scope      Scope
}

// EffectiveScope returns Scope, defaulting to ScopeUnion.
func (q *Query) EffectiveScope() Scope {
	if q.Scope == "" {
		return ScopeUnion
	}
	return q.Scope
}

// OutputNames returns the projected variable names in output order.
// For SELECT * this is every in-scope variable of the body, sorted.
func (q *Query) OutputNames() []string {
	if len(q.Projection) == 0 {
		return q.Body.Variables()
	}
	names := make([]string, len(q.Projection))
	for i, p := range q.Projection {
		names[i] = p.Name
	}
	return names
}
