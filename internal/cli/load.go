package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sparqlflow/internal/harness"
	"github.com/roach88/sparqlflow/internal/store"
)

// ChangeFile is a batch of quad changes read from YAML:
//
//	add:
//	  - ["ex:a", "ex:knows", "ex:b"]
//	remove:
//	  - ["ex:c", "ex:knows", "ex:d", "ex:g1"]
//
// Additions are applied before removals, as in scenario steps.
type ChangeFile struct {
	Add    []harness.QuadSpec `yaml:"add,omitempty"`
	Remove []harness.QuadSpec `yaml:"remove,omitempty"`
}

// LoadSummary reports what a change file did to the store.
type LoadSummary struct {
	File     string `json:"file"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	FirstSeq int64  `json:"first_seq,omitempty"`
	LastSeq  int64  `json:"last_seq,omitempty"`
}

// ReadChangeFile parses a change file, rejecting unknown fields.
func ReadChangeFile(path string) (*ChangeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read change file: %w", err)
	}
	var cf ChangeFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse change file %s: %w", path, err)
	}
	for i, spec := range cf.Add {
		if _, err := spec.Quad(); err != nil {
			return nil, fmt.Errorf("add[%d]: %w", i, err)
		}
	}
	for i, spec := range cf.Remove {
		if _, err := spec.Quad(); err != nil {
			return nil, fmt.Errorf("remove[%d]: %w", i, err)
		}
	}
	return &cf, nil
}

// ApplyChangeFile writes the changes of cf to st in file order.
// A removal of a quad that is not stored stops the batch with
// store.ErrQuadNotFound; earlier writes stay committed.
func ApplyChangeFile(ctx context.Context, st *store.Store, cf *ChangeFile) (LoadSummary, error) {
	var sum LoadSummary
	note := func(seq int64) {
		if sum.FirstSeq == 0 {
			sum.FirstSeq = seq
		}
		sum.LastSeq = seq
	}
	for i, spec := range cf.Add {
		q, err := spec.Quad()
		if err != nil {
			return sum, fmt.Errorf("add[%d]: %w", i, err)
		}
		seq, err := st.Add(ctx, q)
		if err != nil {
			return sum, fmt.Errorf("add[%d] %s: %w", i, q, err)
		}
		note(seq)
		sum.Added++
	}
	for i, spec := range cf.Remove {
		q, err := spec.Quad()
		if err != nil {
			return sum, fmt.Errorf("remove[%d]: %w", i, err)
		}
		seq, err := st.Remove(ctx, q)
		if err != nil {
			return sum, fmt.Errorf("remove[%d] %s: %w", i, q, err)
		}
		note(seq)
		sum.Removed++
	}
	return sum, nil
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <changes.yaml>...",
		Short: "Apply change files to the quad store",
		Long: `Apply YAML change files to the quad store, in argument order.

A change file lists quads to add and quads to remove:

  add:
    - ["ex:a", "ex:knows", "ex:b"]
  remove:
    - ["ex:b", "ex:knows", "ex:c", "ex:g1"]

Every write is appended to the change log, so running queries and later
replays see it.

Example:
  sparqlflow load --db ./quads.db people.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runLoad(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	logger := opts.Logger(cmd.ErrOrStderr())

	files := make([]*ChangeFile, len(paths))
	for i, path := range paths {
		cf, err := ReadChangeFile(path)
		if err != nil {
			_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid change file", err)
		}
		files[i] = cf
	}

	st, err := opts.openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var sums []LoadSummary
	for i, cf := range files {
		sum, err := ApplyChangeFile(ctx, st, cf)
		sum.File = paths[i]
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), sum)
			return WrapExitError(ExitCommandError, "failed to apply "+paths[i], err)
		}
		formatter.VerboseLog("Applied %s: +%d -%d", paths[i], sum.Added, sum.Removed)
		sums = append(sums, sum)
	}

	if formatter.IsJSON() {
		return formatter.Success(sums)
	}
	for _, sum := range sums {
		fmt.Fprintf(formatter.Writer, "✓ %s: %d added, %d removed", sum.File, sum.Added, sum.Removed)
		if sum.LastSeq > 0 {
			fmt.Fprintf(formatter.Writer, " (seq %d..%d)", sum.FirstSeq, sum.LastSeq)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
