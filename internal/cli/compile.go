package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sparqlflow/internal/compiler"
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
	"github.com/roach88/sparqlflow/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// QuerySummary describes one compiled query.
type QuerySummary struct {
	Name       string   `json:"name"`
	Vars       []string `json:"vars"`
	Distinct   bool     `json:"distinct"`
	Scope      string   `json:"scope"`
	Graphs     []string `json:"graphs,omitempty"`
	Triples    []string `json:"triples"`
	Filters    int      `json:"filters"`
	Optionals  int      `json:"optionals"`
	Unions     int      `json:"unions"`
	Subqueries int      `json:"subqueries"`
	Paths      int      `json:"paths"`
	SQL        string   `json:"sql,omitempty"` // set when the query is a plain BGP
}

// CompilationResult holds the summaries of every compiled query.
type CompilationResult struct {
	IRVersion string         `json:"ir_version"`
	Queries   []QuerySummary `json:"queries"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <queries>",
		Short: "Compile CUE queries to query trees",
		Long: `Compile CUE query definitions and print what each query became.

The argument is a .cue file or a directory holding one CUE package.
Every field of its top-level "query" struct is compiled and validated.
Queries that are plain basic graph patterns also show the SQL used to
evaluate them from scratch.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the summaries as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, loadErrors := LoadQueries(path, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return outputCompileError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)
	for _, name := range loadResult.File.Names {
		formatter.VerboseLog("Compiled query: %s", name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{IRVersion: ir.IRVersion}
	for _, name := range loadResult.File.Names {
		q, _ := loadResult.File.Query(name)
		result.Queries = append(result.Queries, summarize(name, q))
	}

	if opts.Output != "" {
		if err := writeSummaries(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// summarize builds the summary of one query.
func summarize(name string, q *queryir.Query) QuerySummary {
	s := QuerySummary{
		Name:       name,
		Vars:       q.OutputNames(),
		Distinct:   q.Distinct,
		Scope:      string(q.EffectiveScope()),
		Filters:    len(q.Body.Filters),
		Optionals:  len(q.Body.Optionals),
		Unions:     len(q.Body.Unions),
		Subqueries: len(q.Body.Segments),
		Triples:    []string{},
	}
	for _, g := range q.Graphs {
		s.Graphs = append(s.Graphs, g.String())
	}
	for _, tp := range q.Body.Triples {
		s.Triples = append(s.Triples, tp.String())
		if queryir.IsRepeating(tp.Predicate) {
			s.Paths++
		}
	}
	if stmt, err := querysql.NewSQLCompiler().Compile(q); err == nil {
		s.SQL = stmt.SQL
	}
	return s
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d query(s)\n\n", len(result.Queries))
	for _, q := range result.Queries {
		distinct := ""
		if q.Distinct {
			distinct = " distinct"
		}
		fmt.Fprintf(w, "%s: select%s ?%s (scope %s)\n", q.Name, distinct, strings.Join(q.Vars, " ?"), q.Scope)
		for _, tp := range q.Triples {
			fmt.Fprintf(w, "  %s\n", tp)
		}
		if n := q.Filters + q.Optionals + q.Unions + q.Subqueries; n > 0 {
			fmt.Fprintf(w, "  + %d filter(s), %d optional(s), %d union(s), %d subquery(s)\n",
				q.Filters, q.Optionals, q.Unions, q.Subqueries)
		}
		if q.SQL != "" && formatter.Verbose {
			fmt.Fprintf(w, "  sql: %s\n", q.SQL)
		}
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote query summaries to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.IsJSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.Failure(cliErrors, cliErrors[0].Code, cliErrors[0].Message); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Field != "" && loadErr.Field != "cue" {
			return loadErr.Code, loadErr.Field + ": " + loadErr.Message
		}
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

func writeSummaries(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summaries: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
