package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAnalyzeReferences_Empty tests that empty input produces no cycles.
func TestAnalyzeReferences_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeReferences(nil))
	assert.Empty(t, AnalyzeReferences(map[string][]string{}))
}

// TestAnalyzeReferences_DAG tests that a diamond of references is accepted.
func TestAnalyzeReferences_DAG(t *testing.T) {
	refs := map[string][]string{
		"top":   {"left", "right"},
		"left":  {"base"},
		"right": {"base"},
	}
	assert.Empty(t, AnalyzeReferences(refs))
}

func TestAnalyzeReferences_SelfLoop(t *testing.T) {
	cycles := AnalyzeReferences(map[string][]string{"a": {"a"}})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "a"}, cycles[0].Path)
	assert.Contains(t, cycles[0].Message, "uses itself")
}

func TestAnalyzeReferences_TwoNodeCycle(t *testing.T) {
	cycles := AnalyzeReferences(map[string][]string{
		"b": {"a"},
		"a": {"b"},
	})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0].Path)
	assert.Equal(t, "subquery reference cycle: a → b → a", cycles[0].Message)
}

// Separate cycles are reported separately, ordered by their first name.
func TestAnalyzeReferences_MultipleCycles(t *testing.T) {
	cycles := AnalyzeReferences(map[string][]string{
		"x":    {"y"},
		"y":    {"x"},
		"a":    {"b"},
		"b":    {"a", "leaf"},
		"self": {"self"},
	})
	require.Len(t, cycles, 3)
	assert.Equal(t, "a", cycles[0].Path[0])
	assert.Equal(t, "self", cycles[1].Path[0])
	assert.Equal(t, "x", cycles[2].Path[0])
}

// Deterministic output regardless of map iteration order.
func TestAnalyzeReferences_Deterministic(t *testing.T) {
	refs := map[string][]string{
		"q1": {"q2"},
		"q2": {"q3"},
		"q3": {"q1"},
		"q4": {"q1"},
	}
	first := AnalyzeReferences(refs)
	for range 20 {
		assert.Equal(t, first, AnalyzeReferences(refs))
	}
	require.Len(t, first, 1)
	assert.Equal(t, []string{"q1", "q2", "q3", "q1"}, first[0].Path)
}
