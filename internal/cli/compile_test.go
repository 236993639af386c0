package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// writeQueries writes src as the only file of a fresh query directory.
func writeQueries(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queries.cue"), []byte(src), 0644))
	return dir
}

const unboundQueries = `
package test

query: bad: {
	select: ["nope", "x", "x"]
	where: triples: [["?x", "ex:knows", "?y"]]
}
`

func TestCompileValidQueries(t *testing.T) {
	out, err := execute(t, NewCompileCommand(testRootOptions(t, "text")), queriesDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 3 query(s)")
	assert.Contains(t, out, "fof: select ?x ?z (scope union)")
	assert.Contains(t, out, "reach: select distinct ?x ?y")
	assert.Contains(t, out, "?x <ex:knows>+ ?y")
	assert.Contains(t, out, "+ 1 filter(s)")
}

func TestCompileValidQueriesJSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(testRootOptions(t, "json")), queriesDir)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.IRVersion, resp.Data.IRVersion)
	require.Len(t, resp.Data.Queries, 3)

	byName := map[string]QuerySummary{}
	for _, q := range resp.Data.Queries {
		byName[q.Name] = q
	}
	assert.Equal(t, []string{"x", "z"}, byName["fof"].Vars)
	assert.NotEmpty(t, byName["fof"].SQL, "plain BGP compiles to SQL")
	assert.Empty(t, byName["reach"].SQL, "property paths have no SQL form")
	assert.Equal(t, 1, byName["reach"].Paths)
	assert.True(t, byName["reach"].Distinct)
	assert.Equal(t, 1, byName["lonely"].Filters)
}

func TestCompileSingleFile(t *testing.T) {
	out, err := execute(t, NewCompileCommand(testRootOptions(t, "text")), filepath.Join(queriesDir, "people.cue"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 1 query(s)")
	assert.Contains(t, out, "lonely")
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	out, err := execute(t, NewCompileCommand(testRootOptions(t, "text")), queriesDir, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote query summaries to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Queries, 3)
}

func TestCompileNonExistentDirectory(t *testing.T) {
	out, err := execute(t, NewCompileCommand(testRootOptions(t, "text")), "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileEmptyDirectory(t *testing.T) {
	out, err := execute(t, NewCompileCommand(testRootOptions(t, "text")), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestCompileSyntaxError(t *testing.T) {
	dir := writeQueries(t, "package test\n\nquery: bad: {\n")

	_, err := execute(t, NewCompileCommand(testRootOptions(t, "text")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileMalformedTriple(t *testing.T) {
	dir := writeQueries(t, `
package test

query: bad: {
	where: triples: [["?x", "ex:knows"]]
}
`)
	out, err := execute(t, NewCompileCommand(testRootOptions(t, "text")), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeInvalidPattern)
	assert.Contains(t, out, "subject, predicate and object")
}

func TestCompileValidationErrors(t *testing.T) {
	dir := writeQueries(t, unboundQueries)

	out, err := execute(t, NewCompileCommand(testRootOptions(t, "text")), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compilation failed with 2 error(s)")
	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, out, queryir.ErrUnboundProjection)
	assert.Contains(t, out, queryir.ErrDuplicateProjection)
	assert.Contains(t, out, "queries.cue:", "errors carry the CUE position")
}

func TestCompileValidationErrorsJSON(t *testing.T) {
	dir := writeQueries(t, unboundQueries)

	out, err := execute(t, NewCompileCommand(testRootOptions(t, "json")), dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []CLIError `json:"data"`
		Error  CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, queryir.ErrUnboundProjection, resp.Error.Code)
	assert.Contains(t, resp.Data[0].Message, "query.bad.select[0]")
}

func TestCompileVerboseOutput(t *testing.T) {
	opts := testRootOptions(t, "text")
	opts.Verbose = true
	cmd := NewCompileCommand(opts)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{queriesDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "Found 2 CUE file(s)")
	assert.Contains(t, stderr.String(), "Compiled query: fof")
	assert.Contains(t, stdout.String(), "sql: SELECT", "verbose shows the SQL of plain BGPs")
	assert.NotContains(t, stdout.String(), "Found 2 CUE file(s)")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	for _, name := range []string{"a.cue", "nested/b.cue", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("package x\n"), 0644))
	}

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field    string
		expected string
	}{
		{"cue", ErrCodeBuildFailed},
		{"query", ErrCodeNoQueries},
		{"query.fof.where.triples[0]", ErrCodeInvalidPattern},
		{"query.fof.where.subqueries", ErrCodeInvalidPattern},
		{"query.fof.select[1]", ErrCodeInvalidSelect},
		{"query.fof.order_by[0]", ErrCodeInvalidOrder},
		{"query.fof.scope", ErrCodeInvalidScope},
		{"query.fof.graphs[0]", ErrCodeInvalidScope},
		{"query.fof.group_by", ErrCodeInvalidAggregate},
		{"query.fof", ErrCodeReferenceCycle},
		{"query.fof.distinct", ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapFieldToErrorCode(tt.field))
		})
	}
}

func TestSummarize(t *testing.T) {
	f, err := loadQueriesOrFail(queriesDir)
	require.NoError(t, err)

	fof, ok := f.Query("fof")
	require.True(t, ok)
	s := summarize("fof", fof)
	assert.Equal(t, "union", s.Scope)
	assert.Equal(t, []string{"?x <ex:knows> ?y", "?y <ex:knows> ?z"}, s.Triples)
	assert.Zero(t, s.Paths)
	assert.Contains(t, s.SQL, "ORDER BY")
}
