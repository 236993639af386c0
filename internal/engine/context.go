package engine

import (
	"fmt"

	"github.com/roach88/sparqlflow/internal/ir"
)

// QueryContext interns binding names and terms to small integer ids for one
// query instance.
//
// INVARIANTS:
//   - Ids grow monotonically and are never reused or freed
//   - A name or term maps to the same id for the life of the query
//
// Not safe for concurrent use; the owning Query serializes access.
type QueryContext struct {
	bindings map[string]int
	names    []string
	terms    map[ir.Term]int32
	termList []ir.Term
}

// NewQueryContext creates an empty context.
func NewQueryContext() *QueryContext {
	return &QueryContext{
		bindings: make(map[string]int),
		terms:    make(map[ir.Term]int32),
	}
}

// Binding returns the id for name, interning it on first use.
func (c *QueryContext) Binding(name string) int {
	if id, ok := c.bindings[name]; ok {
		return id
	}
	id := len(c.names)
	c.bindings[name] = id
	c.names = append(c.names, name)
	return id
}

// LookupBinding returns the id for name without interning.
func (c *QueryContext) LookupBinding(name string) (int, bool) {
	id, ok := c.bindings[name]
	return id, ok
}

// BindingName returns the name for an id. Panics on an unknown id.
func (c *QueryContext) BindingName(id int) string {
	if id < 0 || id >= len(c.names) {
		panic(fmt.Sprintf("engine: unknown binding id %d", id))
	}
	return c.names[id]
}

// NumBindings returns the number of interned binding names.
func (c *QueryContext) NumBindings() int {
	return len(c.names)
}

// Term returns the id for t, interning it on first use.
func (c *QueryContext) Term(t ir.Term) int32 {
	if id, ok := c.terms[t]; ok {
		return id
	}
	id := int32(len(c.termList))
	c.terms[t] = id
	c.termList = append(c.termList, t)
	return id
}

// LookupTerm returns the id for t without interning.
func (c *QueryContext) LookupTerm(t ir.Term) (int32, bool) {
	id, ok := c.terms[t]
	return id, ok
}

// TermOf returns the term for an id. Panics on an unknown id.
func (c *QueryContext) TermOf(id int32) ir.Term {
	if id < 0 || int(id) >= len(c.termList) {
		panic(fmt.Sprintf("engine: unknown term id %d", id))
	}
	return c.termList[id]
}

// NumTerms returns the number of interned terms.
func (c *QueryContext) NumTerms() int {
	return len(c.termList)
}

// mapping converts a row to an ir.Mapping.
func (c *QueryContext) mapping(r row) ir.Mapping {
	m := make(map[string]ir.Term, r.len())
	r.each(func(b int, t int32) {
		m[c.names[b]] = c.termList[t]
	})
	return ir.MappingFromMap(m)
}

// rowOf converts an ir.Mapping to a row of the given kind, interning as needed.
func (c *QueryContext) rowOf(kind rowKind, m ir.Mapping) row {
	r := kind.empty()
	m.Each(func(name string, t ir.Term) {
		r = r.with(c.Binding(name), c.Term(t))
	})
	return r
}
