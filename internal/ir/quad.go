package ir

import "fmt"

// Quad is an RDF statement in a graph.
// A nil Graph and DefaultGraph{} both denote the default graph.
type Quad struct {
	Subject   Term      `json:"subject"`
	Predicate NamedTerm `json:"predicate"`
	Object    Term      `json:"object"`
	Graph     Term      `json:"graph,omitempty"`
}

// NewQuad creates a quad in the default graph.
func NewQuad(s Term, p NamedTerm, o Term) Quad {
	return Quad{Subject: s, Predicate: p, Object: o, Graph: DefaultGraph{}}
}

// InGraph returns a copy of q placed in graph g.
func (q Quad) InGraph(g Term) Quad {
	q.Graph = g
	return q
}

// GraphTerm returns the graph of q, substituting DefaultGraph{} for nil.
func (q Quad) GraphTerm() Term {
	if q.Graph == nil {
		return DefaultGraph{}
	}
	return q.Graph
}

// InDefaultGraph reports whether q belongs to the default graph.
func (q Quad) InDefaultGraph() bool {
	return q.GraphTerm() == DefaultGraph{}
}

// Normalize returns q with a non-nil graph, so that equal statements
// compare equal with ==.
func (q Quad) Normalize() Quad {
	q.Graph = q.GraphTerm()
	return q
}

// Validate checks the structural invariants of a quad.
func (q Quad) Validate() error {
	if q.Subject == nil || q.Object == nil {
		return fmt.Errorf("quad: subject and object are required")
	}
	if q.Predicate.IRI == "" {
		return fmt.Errorf("quad: predicate IRI is required")
	}
	if q.Subject.Kind() == KindDefaultGraph || q.Object.Kind() == KindDefaultGraph {
		return fmt.Errorf("quad: DEFAULT is only valid in the graph position")
	}
	if q.Subject.Kind() == KindLiteral {
		return fmt.Errorf("quad: literal subject %s", q.Subject)
	}
	if g := q.GraphTerm(); g.Kind() == KindLiteral {
		return fmt.Errorf("quad: literal graph name %s", g)
	}
	return nil
}

// String renders q in the compact term notation.
func (q Quad) String() string {
	if q.InDefaultGraph() {
		return fmt.Sprintf("%s %s %s .", q.Subject, q.Predicate, q.Object)
	}
	return fmt.Sprintf("%s %s %s %s .", q.Subject, q.Predicate, q.Object, q.Graph)
}
