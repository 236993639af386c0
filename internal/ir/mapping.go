package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Binding is one name/term pair used to build a Mapping.
type Binding struct {
	Name string
	Term Term
}

// B creates a Binding. Shorthand for tests and literals.
func B(name string, t Term) Binding {
	return Binding{Name: name, Term: t}
}

// Mapping is an immutable partial assignment of variable names to terms.
// The zero value is the empty mapping.
//
// A Mapping never holds two values for the same name. Every operation
// returning a Mapping returns a new value; the receiver is never modified.
type Mapping struct {
	m map[string]Term
}

// NewMapping builds a mapping from bindings.
// Panics if the same name is bound to two different terms.
func NewMapping(bindings ...Binding) Mapping {
	if len(bindings) == 0 {
		return Mapping{}
	}
	m := make(map[string]Term, len(bindings))
	for _, b := range bindings {
		if b.Term == nil {
			panic(fmt.Sprintf("ir.NewMapping: nil term for %q", b.Name))
		}
		if prev, ok := m[b.Name]; ok && prev != b.Term {
			panic(fmt.Sprintf("ir.NewMapping: %q bound to both %s and %s", b.Name, prev, b.Term))
		}
		m[b.Name] = b.Term
	}
	return Mapping{m: m}
}

// MappingFromMap copies src into a new Mapping. Nil terms are skipped.
func MappingFromMap(src map[string]Term) Mapping {
	if len(src) == 0 {
		return Mapping{}
	}
	m := make(map[string]Term, len(src))
	for k, v := range src {
		if v != nil {
			m[k] = v
		}
	}
	return Mapping{m: m}
}

// Get returns the term bound to name.
func (a Mapping) Get(name string) (Term, bool) {
	t, ok := a.m[name]
	return t, ok
}

// Has reports whether name is bound.
func (a Mapping) Has(name string) bool {
	_, ok := a.m[name]
	return ok
}

// Len returns the number of bound names.
func (a Mapping) Len() int {
	return len(a.m)
}

// IsEmpty reports whether no name is bound.
func (a Mapping) IsEmpty() bool {
	return len(a.m) == 0
}

// Keys returns the bound names in ascending order.
func (a Mapping) Keys() []string {
	keys := make([]string, 0, len(a.m))
	for k := range a.m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Each calls fn for every binding in ascending name order.
func (a Mapping) Each(fn func(name string, t Term)) {
	for _, k := range a.Keys() {
		fn(k, a.m[k])
	}
}

// ToMap returns a copy of the underlying association.
func (a Mapping) ToMap() map[string]Term {
	out := make(map[string]Term, len(a.m))
	for k, v := range a.m {
		out[k] = v
	}
	return out
}

// Compatible reports whether a and b agree on every name bound in both.
func (a Mapping) Compatible(b Mapping) bool {
	small, large := a.m, b.m
	if len(small) > len(large) {
		small, large = large, small
	}
	for k, v := range small {
		if w, ok := large[k]; ok && w != v {
			return false
		}
	}
	return true
}

// Merge returns the union of a and b.
// Callers must check Compatible first; merging incompatible mappings panics.
func (a Mapping) Merge(b Mapping) Mapping {
	if len(b.m) == 0 {
		return a
	}
	if len(a.m) == 0 {
		return b
	}
	m := make(map[string]Term, len(a.m)+len(b.m))
	for k, v := range a.m {
		m[k] = v
	}
	for k, v := range b.m {
		if w, ok := m[k]; ok && w != v {
			panic(fmt.Sprintf("ir.Mapping.Merge: incompatible value for %q: %s vs %s", k, w, v))
		}
		m[k] = v
	}
	return Mapping{m: m}
}

// With returns a copy of a with name bound to t, replacing any previous value.
func (a Mapping) With(name string, t Term) Mapping {
	m := make(map[string]Term, len(a.m)+1)
	for k, v := range a.m {
		m[k] = v
	}
	m[name] = t
	return Mapping{m: m}
}

// Project keeps only the listed names. Names not bound in a are skipped.
func (a Mapping) Project(names []string) Mapping {
	m := make(map[string]Term, len(names))
	for _, n := range names {
		if v, ok := a.m[n]; ok {
			m[n] = v
		}
	}
	if len(m) == 0 {
		return Mapping{}
	}
	return Mapping{m: m}
}

// Equal reports whether a and b bind exactly the same names to the same terms.
func (a Mapping) Equal(b Mapping) bool {
	if len(a.m) != len(b.m) {
		return false
	}
	for k, v := range a.m {
		if w, ok := b.m[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Key returns a canonical string identity: equal mappings have equal keys.
// The encoding is "name=term" pairs in name order joined by 0x1f.
func (a Mapping) Key() string {
	if len(a.m) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, k := range a.Keys() {
		if i > 0 {
			sb.WriteByte(0x1f)
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(a.m[k].String())
	}
	return sb.String()
}

// String renders the mapping as {?a=<x> ?b="y"}.
func (a Mapping) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range a.Keys() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte('?')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(a.m[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Compatible is the package-level form of Mapping.Compatible.
func Compatible(a, b Mapping) bool {
	return a.Compatible(b)
}

// Merge is the package-level form of Mapping.Merge.
func Merge(a, b Mapping) Mapping {
	return a.Merge(b)
}
