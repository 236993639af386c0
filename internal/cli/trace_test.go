package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTrace(t *testing.T, opts *RootOptions) {
	t.Helper()
	seedPeople(t, opts)
	unseed(t, opts, q("ex:a", "ex:knows", "ex:b"))
}

func TestTraceTimelineOnly(t *testing.T) {
	opts := testRootOptions(t, "text")
	seedTrace(t, opts)

	out, err := execute(t, NewTraceCommand(opts))
	require.NoError(t, err)

	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, "  [1] ADD <ex:a> <ex:type> <ex:Person> .\n")
	assert.Contains(t, out, "  [6] DEL <ex:a> <ex:knows> <ex:b> .\n")
	assert.Contains(t, out, "  Changes:   6\n")
	assert.Contains(t, out, "  Removals:  1\n")
	assert.Contains(t, out, "  Effects:   0\n")
}

func TestTraceWithQueries(t *testing.T) {
	opts := testRootOptions(t, "text")
	seedTrace(t, opts)

	out, err := execute(t, NewTraceCommand(opts), queriesDir)
	require.NoError(t, err)

	assert.Contains(t, out, "  [5] ADD <ex:b> <ex:knows> <ex:c> .\n"+
		"       fof +{?x=<ex:a> ?z=<ex:c>}\n"+
		"       lonely -{?p=<ex:b>}\n"+
		"       reach +{?x=<ex:a> ?y=<ex:c>}\n"+
		"       reach +{?x=<ex:b> ?y=<ex:c>}\n")
	assert.Contains(t, out, "  [6] DEL <ex:a> <ex:knows> <ex:b> .\n"+
		"       fof -{?x=<ex:a> ?z=<ex:c>}\n"+
		"       lonely +{?p=<ex:a>}\n")
	assert.Contains(t, out, "  Effects:   13\n")
	assert.Contains(t, out, "  fof: 0 result(s), 6 delta(s), 0 ignored")
}

func TestTraceSinceJSON(t *testing.T) {
	opts := testRootOptions(t, "json")
	seedTrace(t, opts)

	out, err := execute(t, NewTraceCommand(opts), queriesDir, "--since", "4", "--query", "fof")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	tr := resp.Data
	require.Len(t, tr.Timeline, 2)
	assert.Equal(t, TraceEvent{
		Seq:     5,
		Op:      "add",
		Quad:    "<ex:b> <ex:knows> <ex:c> .",
		Effects: []TraceEffect{{Query: "fof", Change: "+{?x=<ex:a> ?z=<ex:c>}"}},
	}, tr.Timeline[0])
	assert.Equal(t, "remove", tr.Timeline[1].Op)
	assert.Equal(t, TraceStats{TotalEvents: 2, Additions: 1, Removals: 1, Effects: 2, LastSeq: 6}, tr.Stats)
	require.Len(t, tr.Queries, 1)
	assert.Equal(t, "fof", tr.Queries[0].QueryID)
}

func TestTracePredicateFilter(t *testing.T) {
	opts := testRootOptions(t, "json")
	seedTrace(t, opts)

	out, err := execute(t, NewTraceCommand(opts), "--predicate", "ex:type")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Timeline, 3)
	for _, ev := range resp.Data.Timeline {
		assert.Contains(t, ev.Quad, "<ex:type>")
	}
	assert.Equal(t, int64(6), resp.Data.Stats.LastSeq)
}

func TestTraceEmptyLog(t *testing.T) {
	out, err := execute(t, NewTraceCommand(testRootOptions(t, "text")))
	require.NoError(t, err)
	assert.Contains(t, out, "(no changes)")
}

func TestTraceInvalidPredicate(t *testing.T) {
	_, err := execute(t, NewTraceCommand(testRootOptions(t, "text")), "--predicate", "?x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
