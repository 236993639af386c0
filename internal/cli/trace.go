package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Since     int64
	Predicate string   // optional - filter to one predicate
	Queries   []string // query names; all when empty
}

// TraceEvent represents a single change in the trace timeline.
type TraceEvent struct {
	Seq     int64         `json:"seq"`
	Op      string        `json:"op"` // "add" or "remove"
	Quad    string        `json:"quad"`
	Effects []TraceEffect `json:"effects,omitempty"`
}

// TraceEffect is one result change a logged change caused.
type TraceEffect struct {
	Query  string `json:"query"`
	Change string `json:"change"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Since    int64          `json:"since"`
	Timeline []TraceEvent   `json:"timeline"`
	Stats    TraceStats     `json:"stats"`
	Queries  []engine.Stats `json:"queries,omitempty"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int   `json:"total_events"`
	Additions   int   `json:"additions"`
	Removals    int   `json:"removals"`
	Effects     int   `json:"effects"`
	LastSeq     int64 `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [queries]",
		Short: "Show the change log and what each change did to query results",
		Long: `Show the store's change log as a timeline.

With a queries argument every change is also attributed the result
changes it caused: the queries replay the whole log and each change
lists the rows it added (+) or removed (-).

The output includes:
- Timeline: logged changes in sequence order, with their effects
- Stats: counts of changes and effects, and per-query engine statistics

Examples:
  sparqlflow trace --db ./quads.db
  sparqlflow trace --db ./quads.db ./queries --since 10
  sparqlflow trace --db ./quads.db ./queries --predicate ex:knows --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runTrace(opts, path, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only show changes after this sequence number")
	cmd.Flags().StringVar(&opts.Predicate, "predicate", "", "only show changes with this predicate")
	cmd.Flags().StringSliceVarP(&opts.Queries, "query", "q", nil, "query names to attribute (default all)")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	var predicate ir.Term
	if opts.Predicate != "" {
		t, err := ir.ParseTerm(opts.Predicate)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --predicate", err)
		}
		predicate = t
	}

	var (
		names   []string
		queries []*engine.Query
	)
	if path != "" {
		f, err := loadQueriesOrFail(path)
		if err != nil {
			return err
		}
		names, queries, err = prepareQueries(opts.RootOptions, f, opts.Queries, logger)
		if err != nil {
			return err
		}
	}

	st, err := opts.openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts.Since, predicate, names, queries)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read change log", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

// buildTrace reads the whole change log. Queries see every change so that
// their state is right when the shown window starts; only changes after
// since that match predicate are reported.
func buildTrace(ctx context.Context, st *store.Store, since int64, predicate ir.Term, names []string, queries []*engine.Query) (TraceResult, error) {
	result := TraceResult{Since: since, Timeline: []TraceEvent{}}
	err := st.Changes(ctx, 0, func(d ir.DataDelta) error {
		var effects []TraceEffect
		for i, q := range queries {
			changes, err := q.Process(d)
			if err != nil {
				return fmt.Errorf("seq %d: %w", d.Seq, err)
			}
			for _, c := range changes {
				effects = append(effects, TraceEffect{Query: names[i], Change: c.String()})
			}
		}
		result.Stats.LastSeq = d.Seq

		if d.Seq <= since || (predicate != nil && d.Quad.Predicate != predicate) {
			return nil
		}
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:     d.Seq,
			Op:      d.Kind.String(),
			Quad:    d.Quad.String(),
			Effects: effects,
		})
		result.Stats.TotalEvents++
		if d.Kind == ir.Deletion {
			result.Stats.Removals++
		} else {
			result.Stats.Additions++
		}
		result.Stats.Effects += len(effects)
		return nil
	})
	if err != nil {
		return TraceResult{}, err
	}
	for _, q := range queries {
		result.Queries = append(result.Queries, q.Stats())
	}
	return result, nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	if result.Since > 0 {
		fmt.Fprintf(w, "Trace since seq %d\n\n", result.Since)
	}

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no changes)")
	}
	for _, ev := range result.Timeline {
		op := "ADD"
		if ev.Op == ir.Deletion.String() {
			op = "DEL"
		}
		fmt.Fprintf(w, "  [%d] %s %s\n", ev.Seq, op, ev.Quad)
		for _, e := range ev.Effects {
			fmt.Fprintf(w, "       %s %s\n", e.Query, e.Change)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Changes:   %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Additions: %d\n", result.Stats.Additions)
	fmt.Fprintf(w, "  Removals:  %d\n", result.Stats.Removals)
	fmt.Fprintf(w, "  Effects:   %d\n", result.Stats.Effects)
	fmt.Fprintf(w, "  Last seq:  %d\n", result.Stats.LastSeq)
	for _, st := range result.Queries {
		fmt.Fprintf(w, "  %s: %d result(s), %d delta(s), %d ignored\n", st.QueryID, st.Results, st.Deltas, st.Ignored)
		if verbose {
			for _, r := range st.Rules {
				fmt.Fprintf(w, "    %s probes=%d hits=%d cache=%d\n", r.Pattern, r.Probes, r.Hits, r.CacheSize)
			}
		}
	}
	return nil
}
