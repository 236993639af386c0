package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnections_Chain(t *testing.T) {
	c := NewConnections()

	assert.Equal(t, []Pair{{1, 2}}, c.AddEdge(1, 2))
	assert.Equal(t, []Pair{{1, 3}, {2, 3}}, c.AddEdge(2, 3))
	// prepending an edge reaches everything after it
	assert.Equal(t, []Pair{{0, 1}, {0, 2}, {0, 3}}, c.AddEdge(0, 1))

	assert.Equal(t, []int32{1, 2, 3}, c.PathsFrom(0))
	assert.Equal(t, []int32{0, 1, 2}, c.PathsTo(3))
	assert.True(t, c.Reachable(0, 3))
	assert.False(t, c.Reachable(3, 0))
	assert.False(t, c.Reachable(1, 1))
	assert.Len(t, c.Paths(), 6)
}

func TestConnections_JoinTwoChains(t *testing.T) {
	c := NewConnections()
	c.AddEdge(1, 2)
	c.AddEdge(3, 4)

	added := c.AddEdge(2, 3)
	assert.Equal(t, []Pair{{1, 3}, {1, 4}, {2, 3}, {2, 4}}, added)
}

func TestConnections_Cycle(t *testing.T) {
	c := NewConnections()
	c.AddEdge(1, 2)
	added := c.AddEdge(2, 1)
	assert.Equal(t, []Pair{{1, 1}, {2, 1}, {2, 2}}, added)
	assert.True(t, c.Reachable(1, 1))

	removed := c.RemoveEdge(2, 1)
	assert.Equal(t, []Pair{{1, 1}, {2, 1}, {2, 2}}, removed)
	assert.Equal(t, []Pair{{1, 2}}, c.Paths())
}

func TestConnections_SelfLoop(t *testing.T) {
	c := NewConnections()
	assert.Equal(t, []Pair{{5, 5}}, c.AddEdge(5, 5))
	assert.Equal(t, 1, c.PathCount(5, 5))
	assert.Equal(t, []Pair{{5, 5}}, c.RemoveEdge(5, 5))
	assert.Empty(t, c.Paths())
}

func TestConnections_RemoveKeepsAlternativeRoute(t *testing.T) {
	c := NewConnections()
	// diamond 1→2→4, 1→3→4
	c.AddEdge(1, 2)
	c.AddEdge(2, 4)
	c.AddEdge(1, 3)
	c.AddEdge(3, 4)
	assert.Equal(t, 2, c.PathCount(1, 4))

	assert.Equal(t, []Pair{{2, 4}}, c.RemoveEdge(2, 4))
	assert.True(t, c.Reachable(1, 4), "1 still reaches 4 through 3")
	assert.Equal(t, 1, c.PathCount(1, 4))

	assert.Equal(t, []Pair{{1, 3}, {1, 4}}, c.RemoveEdge(1, 3))
	assert.Equal(t, []Pair{{1, 2}, {3, 4}}, c.Paths())
}

func TestConnections_Multiplicity(t *testing.T) {
	c := NewConnections()
	require.NotEmpty(t, c.AddEdge(1, 2))
	assert.Empty(t, c.AddEdge(1, 2), "second copy adds nothing")
	assert.Equal(t, 2, c.EdgeCount(1, 2))

	assert.Empty(t, c.RemoveEdge(1, 2), "one copy remains")
	assert.True(t, c.Reachable(1, 2))
	assert.Equal(t, []Pair{{1, 2}}, c.RemoveEdge(1, 2))
	assert.Equal(t, 0, c.EdgeCount(1, 2))
}

func TestConnections_RemoveAbsentPanics(t *testing.T) {
	c := NewConnections()
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		c.RemoveEdge(1, 2)
	}()
	require.NotNil(t, recovered, "removing an absent edge panics")
	err, ok := recovered.(*RuntimeError)
	require.True(t, ok, "panic value is %T", recovered)
	assert.True(t, IsUnderflowError(err))
	assert.Equal(t, "connections", err.Details["where"])
	assert.Contains(t, err.Message, "1->2")

	assert.PanicsWithError(t, "COUNT_UNDERFLOW: edge 1->2 removed but not present", func() {
		c.RemoveEdge(1, 2)
	})
}

func TestConnections_UnknownNodes(t *testing.T) {
	c := NewConnections()
	c.AddEdge(1, 2)
	assert.Empty(t, c.PathsFrom(9))
	assert.Empty(t, c.PathsTo(9))
	assert.Equal(t, 0, c.PathCount(9, 1))
}

// An edge set built in any order and then partly removed must reach the
// same closure as building only the surviving edges.
func TestConnections_MatchesRebuild(t *testing.T) {
	edges := []Pair{{1, 2}, {2, 3}, {3, 1}, {3, 4}, {4, 5}, {2, 5}, {5, 6}, {6, 4}}
	drop := map[Pair]bool{{3, 1}: true, {4, 5}: true}

	inc := NewConnections()
	for _, e := range edges {
		inc.AddEdge(e.From, e.To)
	}
	for e := range drop {
		inc.RemoveEdge(e.From, e.To)
	}

	fresh := NewConnections()
	for i := len(edges) - 1; i >= 0; i-- {
		if !drop[edges[i]] {
			fresh.AddEdge(edges[i].From, edges[i].To)
		}
	}
	assert.Equal(t, fresh.Paths(), inc.Paths())
}
