package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/sparqlflow/internal/ir"
)

// RootOptions holds global flags for all commands.
//
// Database, LogFormat and BitsetThreshold may also come from a config file
// or SPARQLFLOW_* environment variables; flags win.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Config          string // config file path
	Database        string
	LogFormat       string // "text" | "json"
	BitsetThreshold int
	TermCacheSize   int // config file or env only
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sparqlflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sparqlflow",
		Short: "sparqlflow - incremental SPARQL SELECT over a live quad store",
		Long: `sparqlflow keeps the results of SPARQL SELECT queries current while
quads are added to and removed from a SQLite-backed quad store.

Queries are written in CUE, compiled to query trees and evaluated
incrementally: every change to the store yields the result rows it adds
or removes.`,
		Version:       ir.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, opts); err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.Config, "config", "", "config file (yaml, toml or json)")
	pf.StringVar(&opts.Database, "db", "", "path to SQLite database")
	pf.StringVar(&opts.LogFormat, "log-format", "text", "log format on stderr (text|json)")
	pf.IntVar(&opts.BitsetThreshold, "bitset-threshold", defaultBitsetThreshold, "distinct bindings below which queries use bitset rows")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
