package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sparqlflow/internal/harness"
	"github.com/roach88/sparqlflow/internal/store"
)

const queriesDir = "testdata/queries"

// testRootOptions returns root options as PersistentPreRunE would leave
// them, with a fresh database in a temp dir.
func testRootOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format:          format,
		Database:        filepath.Join(t.TempDir(), "quads.db"),
		LogFormat:       "text",
		BitsetThreshold: defaultBitsetThreshold,
		TermCacheSize:   store.DefaultTermCacheSize,
	}
}

// execute runs cmd with args and returns its stdout. Logs are discarded.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seed writes quads to the options' database.
func seed(t *testing.T, opts *RootOptions, quads ...harness.QuadSpec) {
	t.Helper()
	st, err := store.Open(opts.Database)
	require.NoError(t, err)
	defer st.Close()
	_, err = ApplyChangeFile(context.Background(), st, &ChangeFile{Add: quads})
	require.NoError(t, err)
}

// unseed removes quads from the options' database.
func unseed(t *testing.T, opts *RootOptions, quads ...harness.QuadSpec) {
	t.Helper()
	st, err := store.Open(opts.Database)
	require.NoError(t, err)
	defer st.Close()
	_, err = ApplyChangeFile(context.Background(), st, &ChangeFile{Remove: quads})
	require.NoError(t, err)
}

func q(s, p, o string) harness.QuadSpec {
	return harness.QuadSpec{s, p, o}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
