package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sparqlflow/internal/compiler"
	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Queries []string // query names; all when empty
	Stats   bool
}

// QueryResults is the snapshot of one query's results.
type QueryResults struct {
	Query string              `json:"query"`
	Vars  []string            `json:"vars"`
	Rows  []map[string]string `json:"rows"`
	Stats *engine.Stats       `json:"stats,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <queries>",
		Short: "Evaluate queries against the quad store",
		Long: `Evaluate queries against the current contents of the quad store.

The queries are hosted by the engine and primed with every stored quad
through the same incremental path live changes take, then their results
are printed. Use watch to keep them running.

Example:
  sparqlflow run --db ./quads.db ./queries
  sparqlflow run --db ./quads.db ./queries --query fof --stats`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueries(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Queries, "query", "q", nil, "query names to run (default all)")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "include engine statistics")

	return cmd
}

func runQueries(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.Logger(cmd.ErrOrStderr())

	f, err := loadQueriesOrFail(path)
	if err != nil {
		return err
	}
	names, queries, err := prepareQueries(opts.RootOptions, f, opts.Queries, logger)
	if err != nil {
		return err
	}

	st, err := opts.openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// The store only logs removals of stored quads, so an unmatched one is
	// a bug and fails the command.
	host := engine.NewEngine(engine.WithLogger(logger), engine.WithStrictRetractions())
	for _, q := range queries {
		host.Register(q)
	}
	ctx := commandContext(cmd)
	if err := host.Attach(ctx, st); err != nil {
		return WrapExitError(ExitCommandError, "failed to read store", err)
	}
	st.Unregister(host)
	host.Stop()
	if err := drain(ctx, host); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	results := make([]QueryResults, len(queries))
	for i, q := range queries {
		results[i] = snapshot(names[i], q, opts.Stats)
	}
	return outputResults(formatter, results)
}

// drain runs a stopped host until its queue is empty. A count underflow is
// returned as an error.
func drain(ctx context.Context, host *engine.Engine) (err error) {
	defer engine.RecoverUnderflow(&err)
	return host.Run(ctx)
}

// prepareQueries prepares the selected queries of f, using each query's
// name as its id.
func prepareQueries(opts *RootOptions, f *compiler.File, selected []string, logger *slog.Logger, extra ...engine.Option) ([]string, []*engine.Query, error) {
	names, trees, err := selectQueries(f, selected)
	if err != nil {
		return nil, nil, err
	}
	ids := engine.NewFixedGenerator(names...)
	queryOpts := append(opts.queryOptions(logger), engine.WithIDGenerator(ids))
	queryOpts = append(queryOpts, extra...)

	queries := make([]*engine.Query, len(names))
	for i, name := range names {
		q, err := engine.Prepare(trees[name], queryOpts...)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to prepare query "+name, err)
		}
		queries[i] = q
	}
	return names, queries, nil
}

func snapshot(name string, q *engine.Query, withStats bool) QueryResults {
	res := QueryResults{
		Query: name,
		Vars:  q.Tree().OutputNames(),
		Rows:  []map[string]string{},
	}
	for _, m := range q.Results() {
		res.Rows = append(res.Rows, rowMap(m))
	}
	if withStats {
		st := q.Stats()
		res.Stats = &st
	}
	return res
}

// rowMap renders a mapping as variable name to term text.
func rowMap(m ir.Mapping) map[string]string {
	out := make(map[string]string, m.Len())
	m.Each(func(name string, t ir.Term) {
		out[name] = t.String()
	})
	return out
}

// formatRow renders a row in the variable order of vars, with "-" for
// unbound variables.
func formatRow(vars []string, row map[string]string) string {
	cells := make([]string, len(vars))
	for i, v := range vars {
		text, ok := row[v]
		if !ok {
			text = "-"
		}
		cells[i] = text
	}
	return strings.Join(cells, "\t")
}

func outputResults(formatter *OutputFormatter, results []QueryResults) error {
	if formatter.IsJSON() {
		return formatter.Success(results)
	}

	w := formatter.Writer
	for _, res := range results {
		fmt.Fprintf(w, "%s (%d result(s))\n", res.Query, len(res.Rows))
		if len(res.Rows) > 0 {
			fmt.Fprintf(w, "  ?%s\n", strings.Join(res.Vars, "\t?"))
		}
		for _, row := range res.Rows {
			fmt.Fprintf(w, "  %s\n", formatRow(res.Vars, row))
		}
		if res.Stats != nil {
			printStats(formatter, res.Stats)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printStats(formatter *OutputFormatter, st *engine.Stats) {
	w := formatter.Writer
	fmt.Fprintf(w, "  stats: %d delta(s), %d ignored, %s rows, %d binding(s), %d term(s)\n",
		st.Deltas, st.Ignored, st.RowKind, st.Bindings, st.Terms)
	for _, r := range st.Rules {
		kind := "regular"
		if r.Repeating {
			kind = "repeating"
		}
		fmt.Fprintf(w, "    %s [%s] probes=%d hits=%d misses=%d in=%d out=%d cache=%d\n",
			r.Pattern, kind, r.Probes, r.Hits, r.Misses, r.ExpansionsIn, r.ExpansionsOut, r.CacheSize)
	}
}
