package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sparqlflow/internal/queryir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                      `json:"valid"`
	Queries []string                  `json:"queries,omitempty"`
	Errors  []queryir.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <queries>",
		Short: "Validate queries without printing them",
		Long: `Validate CUE queries: syntax, structure and the rules the engine
relies on, such as projected variables being bound and filters only
referring to variables in scope.

Every validation error is reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	verrs, names, err := ValidateQueries(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			if loadErr.Field != "" && loadErr.Field != "cue" {
				// A compile error is a validation failure of the input,
				// not of the command.
				return outputValidationErrors(formatter, []queryir.ValidationError{{
					Field:   loadErr.Field,
					Message: loadErr.Message,
					Code:    loadErr.Code,
				}})
			}
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	for _, name := range names {
		formatter.VerboseLog("Validated query: %s", name)
	}
	if len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}
	return outputValidateSuccess(formatter, names)
}

// ValidateQueries loads the queries at path and returns every validation
// error with the names of the compiled queries. A non-nil error means the
// queries could not be compiled at all.
func ValidateQueries(path string) ([]queryir.ValidationError, []string, error) {
	result, errs := LoadQueries(path, LoadModeCollectAll)
	if result == nil {
		return nil, nil, errs[0]
	}
	verrs := make([]queryir.ValidationError, 0, len(errs))
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			verrs = append(verrs, queryir.ValidationError{
				Field:   loadErr.Field,
				Message: loadErr.Message,
				Code:    loadErr.Code,
			})
		}
	}
	return verrs, result.File.Names, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, names []string) error {
	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true, Queries: names})
	}

	fmt.Fprintf(formatter.Writer, "✓ All %d query(s) valid\n", len(names))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Unreadable input is a command-level error (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []queryir.ValidationError) error {
	if formatter.IsJSON() {
		result := ValidationResult{Valid: false, Errors: errs}
		if err := formatter.Failure(result, errs[0].Code, errs[0].Message); err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "%s\n", err.Field)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
