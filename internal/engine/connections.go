package engine

import (
	"cmp"
	"fmt"
	"slices"
)

// Pair is an ordered (from, to) pair of term ids.
type Pair struct {
	From, To int32
}

func comparePairs(a, b Pair) int {
	if c := cmp.Compare(a.From, b.From); c != 0 {
		return c
	}
	return cmp.Compare(a.To, b.To)
}

// Connections maintains the transitive closure of a directed multigraph
// over term ids under edge insertion and deletion.
//
// An edge may be inserted several times; it stays in the graph until it has
// been deleted as often. Reach sets are kept in both directions so that
// inserting an edge s→o only visits ({s} ∪ back[s]) × ({o} ∪ fwd[o]).
// Deleting the last copy of an edge recomputes the forward sets of the
// sources that could have used it.
//
// Not safe for concurrent use.
type Connections struct {
	edges map[Pair]int
	out   map[int32]map[int32]struct{}
	fwd   map[int32]map[int32]struct{}
	back  map[int32]map[int32]struct{}
}

// NewConnections creates an empty index.
func NewConnections() *Connections {
	return &Connections{
		edges: make(map[Pair]int),
		out:   make(map[int32]map[int32]struct{}),
		fwd:   make(map[int32]map[int32]struct{}),
		back:  make(map[int32]map[int32]struct{}),
	}
}

func addTo(m map[int32]map[int32]struct{}, k, v int32) {
	set, ok := m[k]
	if !ok {
		set = make(map[int32]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func removeFrom(m map[int32]map[int32]struct{}, k, v int32) {
	set := m[k]
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
}

// EdgeCount returns the multiplicity of the edge s→o.
func (c *Connections) EdgeCount(s, o int32) int {
	return c.edges[Pair{s, o}]
}

// Reachable reports whether a path of length one or more leads from x to y.
func (c *Connections) Reachable(x, y int32) bool {
	_, ok := c.fwd[x][y]
	return ok
}

// AddEdge inserts one copy of s→o and returns the pairs that became
// reachable, sorted.
func (c *Connections) AddEdge(s, o int32) []Pair {
	e := Pair{s, o}
	c.edges[e]++
	if c.edges[e] > 1 {
		return nil
	}
	addTo(c.out, s, o)

	// Snapshot both sides before mutating the reach sets.
	sources := []int32{s}
	for x := range c.back[s] {
		if x != s {
			sources = append(sources, x)
		}
	}
	targets := []int32{o}
	for y := range c.fwd[o] {
		if y != o {
			targets = append(targets, y)
		}
	}

	var added []Pair
	for _, x := range sources {
		for _, y := range targets {
			if c.Reachable(x, y) {
				continue
			}
			addTo(c.fwd, x, y)
			addTo(c.back, y, x)
			added = append(added, Pair{x, y})
		}
	}
	slices.SortFunc(added, comparePairs)
	return added
}

// RemoveEdge deletes one copy of s→o and returns the pairs that are no
// longer reachable, sorted. Removing an absent edge panics with a count
// underflow.
func (c *Connections) RemoveEdge(s, o int32) []Pair {
	e := Pair{s, o}
	n, ok := c.edges[e]
	if !ok {
		panic(NewUnderflowError("connections", fmt.Sprintf("edge %d->%d removed but not present", s, o)))
	}
	if n > 1 {
		c.edges[e] = n - 1
		return nil
	}
	delete(c.edges, e)
	removeFrom(c.out, s, o)

	affected := []int32{s}
	for x := range c.back[s] {
		if x != s {
			affected = append(affected, x)
		}
	}

	var removed []Pair
	for _, x := range affected {
		reach := c.walk(x)
		for y := range c.fwd[x] {
			if _, ok := reach[y]; ok {
				continue
			}
			removed = append(removed, Pair{x, y})
		}
	}
	for _, p := range removed {
		removeFrom(c.fwd, p.From, p.To)
		removeFrom(c.back, p.To, p.From)
	}
	slices.SortFunc(removed, comparePairs)
	return removed
}

// walk returns every node reachable from x by one or more edges.
func (c *Connections) walk(x int32) map[int32]struct{} {
	seen := make(map[int32]struct{})
	stack := make([]int32, 0, len(c.out[x]))
	for y := range c.out[x] {
		seen[y] = struct{}{}
		stack = append(stack, y)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for y := range c.out[n] {
			if _, ok := seen[y]; ok {
				continue
			}
			seen[y] = struct{}{}
			stack = append(stack, y)
		}
	}
	return seen
}

// PathsFrom returns every node reachable from x, sorted.
func (c *Connections) PathsFrom(x int32) []int32 {
	return sortedIDs(c.fwd[x])
}

// PathsTo returns every node that reaches y, sorted.
func (c *Connections) PathsTo(y int32) []int32 {
	return sortedIDs(c.back[y])
}

// PathCount returns the number of distinct first hops from x that lead to y:
// successors h of x with h == y or y reachable from h.
func (c *Connections) PathCount(x, y int32) int {
	n := 0
	for h := range c.out[x] {
		if h == y || c.Reachable(h, y) {
			n++
		}
	}
	return n
}

// Paths returns every reachable pair, sorted.
func (c *Connections) Paths() []Pair {
	var out []Pair
	for x, ys := range c.fwd {
		for y := range ys {
			out = append(out, Pair{x, y})
		}
	}
	slices.SortFunc(out, comparePairs)
	return out
}

func sortedIDs(set map[int32]struct{}) []int32 {
	out := make([]int32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
