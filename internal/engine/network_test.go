package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

func TestNetwork_ProcessCarriesOrigin(t *testing.T) {
	n := NewNetwork([]queryir.TriplePattern{
		T(V("x"), E(ex("knows")), V("y")),
		T(V("y"), E(ex("knows")), V("z")),
	})

	assert.Empty(t, n.Process(ir.Added(quad("a", "knows", "b"))))

	d := ir.Added(quad("b", "knows", "c"))
	d.Seq = 7
	got := n.Process(d)
	require.Len(t, got, 1)
	assert.Equal(t, ir.Addition, got[0].Kind)
	assert.Equal(t, bind("x", ex("a"), "y", ex("b"), "z", ex("c")), got[0].Mapping)
	assert.Equal(t, []ir.Origin{{Seq: 7, QuadID: ir.QuadID(quad("b", "knows", "c"))}}, got[0].Origin)

	got = n.Process(ir.Removed(quad("a", "knows", "b")))
	require.Len(t, got, 1)
	assert.Equal(t, ir.Deletion, got[0].Kind)
}

func TestNetwork_OneDeltaPerOccurrence(t *testing.T) {
	n := NewNetwork([]queryir.TriplePattern{T(V("x"), E(ex("p")), V("y"))})
	n.Process(ir.Added(quad("a", "p", "b")))
	assert.Len(t, n.Process(ir.Added(quad("a", "p", "b"))), 1)

	n2 := NewNetwork([]queryir.TriplePattern{
		T(V("x"), E(ex("p")), V("y")),
		T(V("x"), E(ex("q")), V("z")),
	})
	n2.Process(ir.Added(quad("a", "p", "b")))
	n2.Process(ir.Added(quad("a", "p", "b")))
	assert.Len(t, n2.Process(ir.Added(quad("a", "q", "c"))), 2, "joined against a doubled row")
}

// Two rules triggered by the same quad must count the pair once.
func TestNetwork_SameQuadTriggersTwoRules(t *testing.T) {
	n := NewNetwork([]queryir.TriplePattern{
		T(V("x"), E(ex("p")), V("y")),
		T(V("y"), E(ex("p")), V("x")),
	})
	got := n.Process(ir.Added(quad("a", "p", "a")))
	require.Len(t, got, 1)
	assert.Equal(t, bind("x", ex("a"), "y", ex("a")), got[0].Mapping)

	got = n.Process(ir.Removed(quad("a", "p", "a")))
	require.Len(t, got, 1)
	assert.Equal(t, ir.Deletion, got[0].Kind)
}

func TestNetwork_PathAccessors(t *testing.T) {
	knows := ex("knows")
	n := NewNetwork([]queryir.TriplePattern{
		T(V("x"), E(ex("name")), V("n")),
		T(V("x"), queryir.OneOrMore{Step: E(knows)}, V("y")),
	})
	for _, q := range []ir.Quad{quad("a", "knows", "b"), quad("b", "knows", "c"), quad("a", "knows", "c")} {
		n.Process(ir.Added(q))
	}

	assert.Equal(t, []ir.Term{ex("b"), ex("c")}, n.PathsFrom(1, knows, ex("a")))
	assert.Equal(t, []ir.Term{ex("a"), ex("b")}, n.PathsTo(1, knows, ex("c")))
	assert.Equal(t, 2, n.PathCount(1, knows, ex("a"), ex("c")))

	assert.Nil(t, n.PathsFrom(0, knows, ex("a")), "rule 0 is not repeating")
	assert.Nil(t, n.PathsFrom(1, ex("likes"), ex("a")), "no index for likes")
	assert.Nil(t, n.PathsFrom(1, knows, ex("nobody")))
	assert.Zero(t, n.PathCount(5, knows, ex("a"), ex("c")))
}

func TestNetwork_Stats(t *testing.T) {
	n := NewNetwork([]queryir.TriplePattern{
		T(V("x"), E(ex("p")), V("y")),
		T(V("y"), E(ex("q")), V("z")),
	})
	n.Process(ir.Added(quad("a", "p", "b")))
	n.Process(ir.Added(quad("b", "q", "c")))

	st := n.Stats()
	require.Len(t, st, 2)
	assert.Equal(t, "?x <http://example.org/p> ?y", st[0].Pattern)
	assert.False(t, st[0].Repeating)
	assert.Equal(t, int64(2), st[0].Probes)
	assert.Equal(t, int64(1), st[0].Hits)
	assert.Equal(t, int64(1), st[0].ExpansionsIn)
	assert.Equal(t, int64(1), st[0].ExpansionsOut)
	assert.Equal(t, 1, st[1].CacheSize)
}

type step struct {
	quad ir.Quad
	add  bool
}

// randomSteps builds a valid sequence of additions and deletions over a
// small vocabulary, so that joins and cycles are frequent.
func randomSteps(r *rand.Rand, n int) ([]step, map[ir.Quad]int) {
	nodes := []string{"a", "b", "c", "d", "e"}
	preds := []string{"p", "q"}
	live := map[ir.Quad]int{}
	var stored []ir.Quad
	var steps []step
	for range n {
		if len(stored) > 0 && r.IntN(3) == 0 {
			i := r.IntN(len(stored))
			q := stored[i]
			stored = append(stored[:i], stored[i+1:]...)
			live[q]--
			if live[q] == 0 {
				delete(live, q)
			}
			steps = append(steps, step{q, false})
			continue
		}
		q := quad(nodes[r.IntN(len(nodes))], preds[r.IntN(len(preds))], nodes[r.IntN(len(nodes))]).Normalize()
		stored = append(stored, q)
		live[q]++
		steps = append(steps, step{q, true})
	}
	return steps, live
}

// Incremental maintenance must agree with evaluating the surviving quads
// from scratch, for every row kind and pattern shape.
func TestQuery_IncrementalMatchesBulk(t *testing.T) {
	shapes := map[string]*queryir.Query{
		"chain": selectAll(bgp(
			T(V("x"), E(ex("p")), V("y")),
			T(V("y"), E(ex("q")), V("z")),
		)),
		"triangle": selectAll(bgp(
			T(V("x"), E(ex("p")), V("y")),
			T(V("y"), E(ex("p")), V("z")),
			T(V("z"), E(ex("p")), V("x")),
		)),
		"path": selectAll(bgp(
			T(V("x"), queryir.ZeroOrMore{Step: E(ex("p"))}, V("y")),
			T(V("y"), E(ex("q")), V("z")),
		)),
		"variable step": selectAll(bgp(T(V("x"), queryir.OneOrMore{Step: V("s")}, V("y")))),
		"optional": {Body: queryir.GraphPattern{
			Triples:   []queryir.TriplePattern{T(V("x"), E(ex("p")), V("y"))},
			Optionals: []queryir.GraphPattern{bgp(T(V("y"), E(ex("q")), V("z")))},
		}},
		"not exists": {Body: queryir.GraphPattern{
			Triples: []queryir.TriplePattern{T(V("x"), E(ex("p")), V("y"))},
			Filters: []queryir.Filter{queryir.NotExists{Pattern: bgp(T(V("y"), E(ex("q")), V("x")))}},
		}},
	}

	for name, shape := range shapes {
		for _, threshold := range []int{DefaultBitsetThreshold, 0} {
			t.Run(name, func(t *testing.T) {
				r := rand.New(rand.NewPCG(42, uint64(threshold)))
				steps, live := randomSteps(r, 120)

				inc := prepare(t, shape, WithBitsetThreshold(threshold))
				for _, s := range steps {
					if s.add {
						add(t, inc, s.quad)
					} else {
						remove(t, inc, s.quad)
					}
				}

				bulk := prepare(t, shape, WithBitsetThreshold(threshold))
				for q, n := range live {
					for range n {
						add(t, bulk, q)
					}
				}
				assert.Equal(t, rendered(bulk), rendered(inc))
			})
		}
	}
}

// Adding then removing the same quads in reverse leaves nothing behind.
func TestQuery_DeletionInvertsInsertion(t *testing.T) {
	query := prepare(t, selectAll(bgp(
		T(V("x"), queryir.OneOrMore{Step: E(ex("p"))}, V("y")),
		T(V("y"), E(ex("q")), V("z")),
	)))
	quads := []ir.Quad{
		quad("a", "p", "b"), quad("b", "p", "c"), quad("c", "p", "a"),
		quad("c", "q", "d"), quad("a", "p", "b"), quad("b", "q", "b"),
	}
	var net int
	for _, q := range quads {
		net += len(add(t, query, q))
	}
	require.NotZero(t, net)
	for i := len(quads) - 1; i >= 0; i-- {
		net -= len(remove(t, query, quads[i]))
	}
	assert.Zero(t, net)
	assert.Empty(t, query.Results())
	for _, st := range query.Stats().Rules {
		assert.Zero(t, st.CacheSize)
	}
}
