package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/sparqlflow/internal/engine"
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/querysql"
	"github.com/roach88/sparqlflow/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Queries []string // query names; all when empty
}

// ReplayQueryResult holds the replay result for a single query.
type ReplayQueryResult struct {
	Query      string `json:"query"`
	Replayed   int    `json:"replayed"`   // results after replaying the change log
	Subscribed int    `json:"subscribed"` // results after subscribing to the store
	Reference  *int   `json:"reference,omitempty"`
	Consistent bool   `json:"consistent"`
	Diff       string `json:"diff,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Queries       []ReplayQueryResult `json:"queries"`
	LastSeq       int64               `json:"last_seq"`
	AllConsistent bool                `json:"all_consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <queries>",
		Short: "Replay the change log and verify query results",
		Long: `Replay the store's change log through fresh queries and verify that
incremental maintenance is consistent.

For every query the full log is replayed from the first change, and the
results are compared with a second instance subscribed to the current
store contents. Queries that are plain basic graph patterns are also
compared with a single SQL evaluation over the store.

Exit codes:
  0 - Every query is consistent
  1 - Results differ for at least one query
  2 - Command error (database not found, invalid queries, etc.)

Examples:
  sparqlflow replay --db ./quads.db ./queries
  sparqlflow replay --db ./quads.db ./queries --query fof --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Queries, "query", "q", nil, "query names to replay (default all)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.Logger(cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	f, err := loadQueriesOrFail(path)
	if err != nil {
		return err
	}
	names, replayed, err := prepareQueries(opts.RootOptions, f, opts.Queries, logger)
	if err != nil {
		return err
	}
	_, live, err := prepareQueries(opts.RootOptions, f, names, logger)
	if err != nil {
		return err
	}

	st, err := opts.openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	result := ReplayResult{AllConsistent: true}
	for i, name := range names {
		res, last, err := replayAndVerify(ctx, st, name, replayed[i], live[i])
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay query %s", name), err)
		}
		formatter.VerboseLog("Replayed %s through seq %d", name, last)
		result.LastSeq = last
		result.Queries = append(result.Queries, res)
		if !res.Consistent {
			result.AllConsistent = false
		}
	}

	return outputReplay(formatter, result)
}

// replayAndVerify replays the full log into replayed, subscribes live to
// st, and compares both with each other and with a SQL evaluation when
// the query allows one.
func replayAndVerify(ctx context.Context, st *store.Store, name string, replayed, live *engine.Query) (ReplayQueryResult, int64, error) {
	last, err := engine.Replay(ctx, replayed, st, 0)
	if err != nil {
		return ReplayQueryResult{}, 0, fmt.Errorf("replay: %w", err)
	}
	if err := live.Subscribe(ctx, st); err != nil {
		return ReplayQueryResult{}, 0, err
	}
	live.Unsubscribe(st)

	got := renderSorted(replayed.Results())
	want := renderSorted(live.Results())
	res := ReplayQueryResult{
		Query:      name,
		Replayed:   len(got),
		Subscribed: len(want),
		Consistent: true,
	}
	if diff := diffRendered(got, want); diff != "" {
		res.Consistent = false
		res.Diff = "replayed vs subscribed: " + diff
		return res, last, nil
	}

	sols, err := st.Select(ctx, replayed.Tree())
	switch {
	case errors.Is(err, querysql.ErrUnsupported):
		return res, last, nil
	case err != nil:
		return ReplayQueryResult{}, 0, err
	}
	var ref []ir.Mapping
	for _, s := range sols {
		for range s.Count {
			ref = append(ref, s.Mapping)
		}
	}
	refRendered := renderSorted(ref)
	n := len(refRendered)
	res.Reference = &n
	if diff := diffRendered(got, refRendered); diff != "" {
		res.Consistent = false
		res.Diff = "replayed vs reference: " + diff
	}
	return res, last, nil
}

func renderSorted(ms []ir.Mapping) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.String()
	}
	slices.Sort(out)
	return out
}

// diffRendered describes the first difference between two sorted lists,
// or returns "" when they are equal.
func diffRendered(got, want []string) string {
	if slices.Equal(got, want) {
		return ""
	}
	for i := 0; i < len(got) || i < len(want); i++ {
		switch {
		case i >= len(got):
			return fmt.Sprintf("missing %s", want[i])
		case i >= len(want):
			return fmt.Sprintf("unexpected %s", got[i])
		case got[i] < want[i]:
			return fmt.Sprintf("unexpected %s", got[i])
		case got[i] > want[i]:
			return fmt.Sprintf("missing %s", want[i])
		}
	}
	return ""
}

func outputReplay(formatter *OutputFormatter, result ReplayResult) error {
	if formatter.IsJSON() {
		if !result.AllConsistent {
			if err := formatter.Failure(result, "E_REPLAY", "replay verification failed"); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "replay verification failed")
		}
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Replay Summary: %d query(s) through seq %d\n", len(result.Queries), result.LastSeq)
	fmt.Fprintln(w)
	for _, q := range result.Queries {
		status := "✓"
		if !q.Consistent {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d replayed, %d subscribed", status, q.Query, q.Replayed, q.Subscribed)
		if q.Reference != nil {
			fmt.Fprintf(w, ", %d reference", *q.Reference)
		}
		fmt.Fprintln(w)
		if q.Diff != "" {
			fmt.Fprintf(w, "  %s\n", q.Diff)
		}
	}
	fmt.Fprintln(w)

	if result.AllConsistent {
		fmt.Fprintln(w, "✓ All queries consistent")
		return nil
	}
	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
