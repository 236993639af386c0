package store

import (
	"fmt"

	"github.com/roach88/sparqlflow/internal/ir"
)

// marshalTerm returns the stored form of a term: its kind and its compact
// text, which round-trips through ir.ParseTerm.
func marshalTerm(t ir.Term) (ir.TermKind, string, error) {
	if t == nil {
		return 0, "", fmt.Errorf("marshal term: nil term")
	}
	return t.Kind(), t.String(), nil
}

// unmarshalTerm parses stored term text.
func unmarshalTerm(text string) (ir.Term, error) {
	t, err := ir.ParseTerm(text)
	if err != nil {
		return nil, fmt.Errorf("unmarshal term: %w", err)
	}
	return t, nil
}

// unmarshalQuad rebuilds a quad from the stored text of its four terms.
func unmarshalQuad(s, p, o, g string) (ir.Quad, error) {
	subj, err := unmarshalTerm(s)
	if err != nil {
		return ir.Quad{}, err
	}
	pred, err := unmarshalTerm(p)
	if err != nil {
		return ir.Quad{}, err
	}
	named, ok := pred.(ir.NamedTerm)
	if !ok {
		return ir.Quad{}, fmt.Errorf("unmarshal quad: predicate %s is not an IRI", p)
	}
	obj, err := unmarshalTerm(o)
	if err != nil {
		return ir.Quad{}, err
	}
	graph, err := unmarshalTerm(g)
	if err != nil {
		return ir.Quad{}, err
	}
	return ir.Quad{Subject: subj, Predicate: named, Object: obj, Graph: graph}, nil
}
