package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ScenarioFiles(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func fofScenario(name string) *Scenario {
	return &Scenario{
		Name:        name,
		Description: "two-hop knows",
		Inline: `query: fof: {
			select: ["x", "z"]
			where: triples: [["?x", "ex:knows", "?y"], ["?y", "ex:knows", "?z"]]
		}`,
		Setup: []QuadSpec{{"ex:a", "ex:knows", "ex:b"}},
	}
}

func TestRun_TraceExcludesPriming(t *testing.T) {
	s := fofScenario("priming")
	s.Setup = append(s.Setup, QuadSpec{"ex:b", "ex:knows", "ex:c"})
	s.Steps = []Step{{Add: []QuadSpec{{"ex:c", "ex:knows", "ex:d"}}}}

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 1)
	ev := result.Trace[0]
	assert.Equal(t, 0, ev.Step)
	assert.Equal(t, int64(3), ev.Seq, "two setup changes come first")
	assert.Equal(t, "add", ev.Op)
	assert.Equal(t, "<ex:c> <ex:knows> <ex:d> .", ev.Quad)
	assert.Equal(t, []ChangeEvent{{Query: "fof", Change: "+{?x=<ex:b> ?z=<ex:d>}"}}, ev.Changes)

	assert.ElementsMatch(t, []string{
		"{?x=<ex:a> ?z=<ex:c>}",
		"{?x=<ex:b> ?z=<ex:d>}",
	}, result.Results["fof"])
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := fofScenario("mismatch")
	s.Steps = []Step{{
		Add: []QuadSpec{{"ex:b", "ex:knows", "ex:c"}},
		Expect: map[string]*ExpectClause{
			"fof": {New: []Row{{"x": "ex:a", "z": "ex:zzz"}}},
		},
	}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 0: query fof: new:")
	assert.Contains(t, result.Errors[0], "unexpected {?x=<ex:a> ?z=<ex:c>} x1")
	assert.Contains(t, result.Errors[0], "missing {?x=<ex:a> ?z=<ex:zzz>} x1")
}

func TestRun_ExpectUnknownQuery(t *testing.T) {
	s := fofScenario("unknown")
	s.Steps = []Step{{
		Add:    []QuadSpec{{"ex:b", "ex:knows", "ex:c"}},
		Expect: map[string]*ExpectClause{"nope": {}},
	}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{`step 0: unknown query "nope"`}, result.Errors)
}

func TestRun_DuplicateSteps(t *testing.T) {
	s := fofScenario("duplicates")
	s.CheckReference = true
	s.Steps = []Step{
		{
			Add: []QuadSpec{{"ex:b", "ex:knows", "ex:c"}, {"ex:b", "ex:knows", "ex:c"}},
			Expect: map[string]*ExpectClause{
				"fof": {New: []Row{{"x": "ex:a", "z": "ex:c"}, {"x": "ex:a", "z": "ex:c"}}},
			},
		},
		{
			Remove: []QuadSpec{{"ex:b", "ex:knows", "ex:c"}},
			Expect: map[string]*ExpectClause{
				"fof": {Removed: []Row{{"x": "ex:a", "z": "ex:c"}}},
			},
		},
	}
	s.Assertions = []Assertion{{Type: AssertCount, Query: "fof", Count: 1}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RemoveMissingQuadFails(t *testing.T) {
	s := fofScenario("remove_missing")
	s.Steps = []Step{{Remove: []QuadSpec{{"ex:x", "ex:knows", "ex:y"}}}}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 remove 0")
}

func TestRun_CompileErrors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.cue")
	require.NoError(t, os.WriteFile(a, []byte(`query: q: where: triples: [["?s", "ex:p", "?o"]]`), 0644))

	t.Run("duplicate name across sources", func(t *testing.T) {
		s := &Scenario{
			Name:    "dup",
			Queries: []string{a},
			Inline:  `query: q: where: triples: [["?s", "ex:r", "?o"]]`,
		}
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query q defined twice")
	})

	t.Run("invalid query", func(t *testing.T) {
		s := &Scenario{
			Name:   "invalid",
			Inline: `query: q: {select: ["nope"], where: triples: [["?s", "ex:p", "?o"]]}`,
		}
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to compile queries")
	})

	t.Run("unreadable file", func(t *testing.T) {
		s := &Scenario{Name: "missing", Queries: []string{filepath.Join(dir, "missing.cue")}}
		_, err := Run(s)
		require.Error(t, err)
	})
}

func TestRun_CheckReferenceDetectsNothingOnAgreement(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/lonely_people.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.ElementsMatch(t, []string{"{?p=<ex:ann>}", "{?p=<ex:bob>}"}, result.Results["lonely"])
	assert.ElementsMatch(t, []string{`{?n="Bob" ?p=<ex:bob>}`, "{?p=<ex:ann>}"}, result.Results["named"])
}
