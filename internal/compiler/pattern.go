package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// pattern parses a group graph pattern:
//
//	{
//		triples:    [[subject, predicate, object], ...]
//		filters:    [expr | {exists: pattern} | {not_exists: pattern}, ...]
//		optionals:  [pattern, ...]
//		unions:     [[pattern, pattern, ...], ...]
//		subqueries: [query | "query name", ...]
//	}
func (c *compiler) pattern(field string, v cue.Value) (queryir.GraphPattern, error) {
	var g queryir.GraphPattern
	if v.IncompleteKind() != cue.StructKind {
		return g, &CompileError{
			Field:   field,
			Message: "graph pattern must be a struct",
			Pos:     v.Pos(),
		}
	}

	err := eachItem(v, "triples", field, func(f string, item cue.Value) error {
		tp, err := parseTriple(f, item)
		if err != nil {
			return err
		}
		g.Triples = append(g.Triples, tp)
		return nil
	})
	if err != nil {
		return g, err
	}

	err = eachItem(v, "filters", field, func(f string, item cue.Value) error {
		flt, err := c.filter(f, item)
		if err != nil {
			return err
		}
		g.Filters = append(g.Filters, flt)
		return nil
	})
	if err != nil {
		return g, err
	}

	err = eachItem(v, "optionals", field, func(f string, item cue.Value) error {
		opt, err := c.pattern(f, item)
		if err != nil {
			return err
		}
		g.Optionals = append(g.Optionals, opt)
		return nil
	})
	if err != nil {
		return g, err
	}

	err = eachItem(v, "unions", field, func(f string, item cue.Value) error {
		var u queryir.Union
		iter, err := item.List()
		if err != nil {
			return &CompileError{
				Field:   f,
				Message: "union must be a list of graph patterns",
				Pos:     item.Pos(),
			}
		}
		for i := 0; iter.Next(); i++ {
			branch, err := c.pattern(fmt.Sprintf("%s[%d]", f, i), iter.Value())
			if err != nil {
				return err
			}
			u.Branches = append(u.Branches, branch)
		}
		g.Unions = append(g.Unions, u)
		return nil
	})
	if err != nil {
		return g, err
	}

	err = eachItem(v, "subqueries", field, func(f string, item cue.Value) error {
		var sub *queryir.Query
		if name, err := item.String(); err == nil {
			sub, err = c.reference(f, item, name)
			if err != nil {
				return err
			}
		} else {
			sub, err = c.query(f, item)
			if err != nil {
				return err
			}
		}
		g.Segments = append(g.Segments, sub)
		return nil
	})
	return g, err
}

// eachItem calls fn for every element of the optional list field name.
func eachItem(v cue.Value, name, field string, fn func(field string, item cue.Value) error) error {
	listVal := v.LookupPath(cue.ParsePath(name))
	if !listVal.Exists() {
		return nil
	}
	iter, err := listVal.List()
	if err != nil {
		return &CompileError{
			Field:   field + "." + name,
			Message: name + " must be a list",
			Pos:     listVal.Pos(),
		}
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(fmt.Sprintf("%s.%s[%d]", field, name, i), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// parseTriple parses [subject, predicate, object].
func parseTriple(field string, v cue.Value) (queryir.TriplePattern, error) {
	var slots []cue.Value
	if iter, err := v.List(); err == nil {
		for iter.Next() {
			slots = append(slots, iter.Value())
		}
	}
	if len(slots) != 3 {
		return queryir.TriplePattern{}, &CompileError{
			Field:   field,
			Message: "triple must be a list of subject, predicate and object",
			Pos:     v.Pos(),
		}
	}

	s, err := parsePosition(field+".subject", slots[0])
	if err != nil {
		return queryir.TriplePattern{}, err
	}
	predStr, err := slots[1].String()
	if err != nil {
		return queryir.TriplePattern{}, &CompileError{
			Field:   field + ".predicate",
			Message: "predicate must be a string",
			Pos:     slots[1].Pos(),
		}
	}
	p, err := ParsePredicate(predStr)
	if err != nil {
		return queryir.TriplePattern{}, &CompileError{
			Field:   field + ".predicate",
			Message: err.Error(),
			Pos:     slots[1].Pos(),
		}
	}
	o, err := parsePosition(field+".object", slots[2])
	if err != nil {
		return queryir.TriplePattern{}, err
	}
	return queryir.T(s, p, o), nil
}

// parsePosition reads "?name" as a variable and anything else as a term.
func parsePosition(field string, v cue.Value) (queryir.Position, error) {
	if s, err := v.String(); err == nil {
		if name, ok := variableName(s); ok {
			return queryir.V(name), nil
		}
	}
	t, err := parseTermValue(field, v)
	if err != nil {
		return nil, err
	}
	return queryir.E(t), nil
}

func variableName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != '?' && s[0] != '$') {
		return "", false
	}
	return s[1:], true
}

// ParsePredicate reads the predicate notation used in query files:
//
//	<p>             a fixed IRI (bare IRIs are taken verbatim)
//	?p              a variable
//	<p>|<q>         alternatives, optionally parenthesized
//	!<p>, !(<p>|<q>) negated set
//	<p>*, ?p*       zero or more steps
//	<p>+, ?p+       one or more steps
func ParsePredicate(s string) (queryir.Predicate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty predicate")
	}

	if strings.HasPrefix(s, "!") {
		iris, err := parseIRISet(s[1:])
		if err != nil {
			return nil, fmt.Errorf("negated set %q: %w", s, err)
		}
		return queryir.Negated{IRIs: iris}, nil
	}

	if last := s[len(s)-1]; len(s) > 1 && (last == '*' || last == '+') {
		step, err := parseStep(s[:len(s)-1])
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", s, err)
		}
		if last == '*' {
			return queryir.ZeroOrMore{Step: step}, nil
		}
		return queryir.OneOrMore{Step: step}, nil
	}

	if strings.Contains(s, "|") {
		iris, err := parseIRISet(s)
		if err != nil {
			return nil, fmt.Errorf("alternatives %q: %w", s, err)
		}
		return queryir.Alts{IRIs: iris}, nil
	}

	return parseStep(s)
}

// parseStep reads a single IRI or variable predicate.
func parseStep(s string) (queryir.Predicate, error) {
	if name, ok := variableName(s); ok {
		return queryir.V(name), nil
	}
	iri, err := parseIRI(s)
	if err != nil {
		return nil, err
	}
	return queryir.E(iri), nil
}

func parseIRISet(s string) ([]ir.NamedTerm, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		s = s[1 : len(s)-1]
	}
	var iris []ir.NamedTerm
	for _, part := range strings.Split(s, "|") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		iri, err := parseIRI(part)
		if err != nil {
			return nil, err
		}
		iris = append(iris, iri)
	}
	return iris, nil
}

func parseIRI(s string) (ir.NamedTerm, error) {
	t, err := ir.ParseTerm(s)
	if err != nil {
		return ir.NamedTerm{}, err
	}
	iri, ok := t.(ir.NamedTerm)
	if !ok {
		return ir.NamedTerm{}, fmt.Errorf("predicate must be an IRI, got %s", t)
	}
	return iri, nil
}

// filter parses {exists: pattern}, {not_exists: pattern} or an expression.
func (c *compiler) filter(field string, v cue.Value) (queryir.Filter, error) {
	if ex := v.LookupPath(cue.ParsePath("exists")); ex.Exists() {
		g, err := c.pattern(field+".exists", ex)
		if err != nil {
			return nil, err
		}
		return queryir.Exists{Pattern: g}, nil
	}
	if nex := v.LookupPath(cue.ParsePath("not_exists")); nex.Exists() {
		g, err := c.pattern(field+".not_exists", nex)
		if err != nil {
			return nil, err
		}
		return queryir.NotExists{Pattern: g}, nil
	}
	e, err := parseExpr(field, v)
	if err != nil {
		return nil, err
	}
	return queryir.ExprFilter{Expr: e}, nil
}
