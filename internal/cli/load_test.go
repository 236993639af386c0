package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sparqlflow/internal/harness"
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/store"
)

func writeChangeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadChangeFile(t *testing.T) {
	cf, err := ReadChangeFile("testdata/changes/people.yaml")
	require.NoError(t, err)
	assert.Len(t, cf.Add, 5)
	assert.Empty(t, cf.Remove)

	quad, err := cf.Add[3].Quad()
	require.NoError(t, err)
	assert.Equal(t, "<ex:a> <ex:knows> <ex:b> .", quad.String())
}

func TestReadChangeFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "insert:\n  - [\"ex:a\", \"ex:p\", \"ex:b\"]\n", "insert"},
		{"short quad", "add:\n  - [\"ex:a\", \"ex:p\"]\n", "add[0]"},
		{"literal predicate", "remove:\n  - [\"ex:a\", \"\\\"p\\\"\", \"ex:b\"]\n", "remove[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeChangeFile(t, t.TempDir(), "bad.yaml", tt.content)
			_, err := ReadChangeFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadChangeFile_Empty(t *testing.T) {
	path := writeChangeFile(t, t.TempDir(), "empty.yaml", "")
	cf, err := ReadChangeFile(path)
	require.NoError(t, err)
	assert.Empty(t, cf.Add)
	assert.Empty(t, cf.Remove)
}

func TestApplyChangeFile(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "quads.db"))
	require.NoError(t, err)
	defer st.Close()

	sum, err := ApplyChangeFile(ctx, st, &ChangeFile{
		Add:    []harness.QuadSpec{q("ex:a", "ex:knows", "ex:b"), q("ex:b", "ex:knows", "ex:c")},
		Remove: []harness.QuadSpec{q("ex:a", "ex:knows", "ex:b")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Added)
	assert.Equal(t, 1, sum.Removed)
	assert.Equal(t, int64(1), sum.FirstSeq)
	assert.Equal(t, int64(3), sum.LastSeq)

	n, err := st.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ApplyChangeFile(ctx, st, &ChangeFile{Remove: []harness.QuadSpec{q("ex:x", "ex:knows", "ex:y")}})
	assert.ErrorIs(t, err, store.ErrQuadNotFound)
}

func TestLoadCommand(t *testing.T) {
	opts := testRootOptions(t, "text")

	out, err := execute(t, NewLoadCommand(opts), "testdata/changes/people.yaml", "testdata/changes/unfriend.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ testdata/changes/people.yaml: 5 added, 0 removed (seq 1..5)")
	assert.Contains(t, out, "✓ testdata/changes/unfriend.yaml: 0 added, 1 removed (seq 6..6)")

	st, err := store.Open(opts.Database)
	require.NoError(t, err)
	defer st.Close()
	n, err := st.Count(context.Background(), ir.NewQuad(ir.IRI("ex:a"), ir.IRI("ex:knows"), ir.IRI("ex:b")))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadCommandJSON(t *testing.T) {
	out, err := execute(t, NewLoadCommand(testRootOptions(t, "json")), "testdata/changes/people.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []LoadSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 5, resp.Data[0].Added)
}

// Files are parsed before anything is written, so one bad file leaves the
// store untouched.
func TestLoadCommandInvalidFile(t *testing.T) {
	opts := testRootOptions(t, "text")
	bad := writeChangeFile(t, t.TempDir(), "bad.yaml", "add:\n  - [\"ex:a\"]\n")

	_, err := execute(t, NewLoadCommand(opts), "testdata/changes/people.yaml", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	_, statErr := os.Stat(opts.Database)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadCommandRemoveMissing(t *testing.T) {
	_, err := execute(t, NewLoadCommand(testRootOptions(t, "text")), "testdata/changes/unfriend.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrQuadNotFound)
}
