package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sparqlflow/internal/ir"
)

// ChangeKind says whether a result became visible or was retracted.
type ChangeKind uint8

const (
	// New is one more occurrence of a result.
	New ChangeKind = iota + 1
	// Removed is one occurrence fewer.
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case New:
		return "new"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("ChangeKind(%d)", uint8(k))
	}
}

// ResultChange is one occurrence of a result entering or leaving the
// result set.
type ResultChange struct {
	Kind   ChangeKind
	Value  ir.Mapping
	Origin ir.Origin
}

// String renders "+{?x=<a>}" or "-{?x=<a>}".
func (c ResultChange) String() string {
	if c.Kind == Removed {
		return "-" + c.Value.String()
	}
	return "+" + c.Value.String()
}

type resultEntry struct {
	value ir.Mapping
	count int
}

// Results counts the occurrences of each complete output mapping.
//
// A mapping is visible while its count is positive. Counts never go
// negative: a retraction without a matching occurrence panics with a
// count underflow.
type Results struct {
	entries  map[string]*resultEntry
	total    int
	distinct bool
	order    func(a, b ir.Mapping) int
	queryID  string
}

func newResults(queryID string, distinct bool, order func(a, b ir.Mapping) int) *Results {
	return &Results{
		entries:  make(map[string]*resultEntry),
		distinct: distinct,
		order:    order,
		queryID:  queryID,
	}
}

// add adjusts the count of m by n and returns the previous and new counts.
func (r *Results) add(m ir.Mapping, n int) (before, after int) {
	k := m.Key()
	e, ok := r.entries[k]
	if ok {
		before = e.count
	}
	after = before + n
	if after < 0 {
		err := NewUnderflowError("results", fmt.Sprintf("result %s retracted below zero", m))
		err.QueryID = r.queryID
		panic(err)
	}
	r.total += n
	switch {
	case after == 0:
		delete(r.entries, k)
	case ok:
		e.count = after
	default:
		r.entries[k] = &resultEntry{value: m, count: after}
	}
	return before, after
}

// Count returns the number of occurrences of m.
func (r *Results) Count(m ir.Mapping) int {
	if e, ok := r.entries[m.Key()]; ok {
		return e.count
	}
	return 0
}

// Len returns the length of Snapshot.
func (r *Results) Len() int {
	if r.distinct {
		return len(r.entries)
	}
	return r.total
}

// Snapshot returns the visible results: each mapping repeated per
// occurrence, or once under DISTINCT. ORDER BY keys sort the list; without
// them mappings appear in canonical key order.
func (r *Results) Snapshot() []ir.Mapping {
	es := make([]*resultEntry, 0, len(r.entries))
	for _, e := range r.entries {
		es = append(es, e)
	}
	slices.SortFunc(es, func(a, b *resultEntry) int {
		if r.order != nil {
			if c := r.order(a.value, b.value); c != 0 {
				return c
			}
		}
		return strings.Compare(a.value.Key(), b.value.Key())
	})
	out := make([]ir.Mapping, 0, r.Len())
	for _, e := range es {
		n := e.count
		if r.distinct {
			n = 1
		}
		for range n {
			out = append(out, e.value)
		}
	}
	return out
}
