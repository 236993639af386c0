package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sparqlflow/internal/compiler"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// LoadMode controls how errors are handled during query loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all validation errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the queries loaded from a file or directory.
type LoadResult struct {
	File      *compiler.File
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during query loading.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadQueries loads and compiles the CUE queries at path, a single .cue
// file or a directory holding one CUE package.
//
// Compilation stops at the first compile error. Validation errors are
// returned one at a time in LoadModeFailFast and all together in
// LoadModeCollectAll. The result is nil when nothing could be compiled.
func LoadQueries(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("queries path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing queries path: %v", err)}}
	}

	ctx := cuecontext.New()
	var (
		value cue.Value
		count int
	)
	if info.IsDir() {
		cueFiles, err := FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		count = len(cueFiles)

		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
		}
		value = ctx.BuildInstance(inst)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}}
		}
		count = 1
		value = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := value.Err(); err != nil {
		return nil, []error{convertCompileError(err, "cue")}
	}

	f, err := compiler.CompileFile(value)
	if err != nil {
		return nil, []error{convertCompileError(err, "query")}
	}
	result := &LoadResult{File: f, CUEValue: value, FileCount: count}

	var errs []error
	for _, verr := range compiler.Validate(f) {
		errs = append(errs, &LoadError{
			Code:    verr.Code,
			Field:   verr.Field,
			Message: verr.Message,
			Pos:     fieldPos(value, verr.Field),
		})
		if mode == LoadModeFailFast {
			break
		}
	}
	return result, errs
}

// fieldPos returns the CUE position of a validation field path such as
// "query.friends.select[0]", or of its closest existing ancestor.
func fieldPos(v cue.Value, field string) token.Pos {
	path := field
	for path != "" {
		if p := cue.ParsePath(path); p.Err() == nil {
			if fv := v.LookupPath(p); fv.Exists() {
				return fv.Pos()
			}
		}
		i := strings.LastIndexAny(path, ".[")
		if i < 0 {
			break
		}
		path = path[:i]
	}
	return token.NoPos
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Field:   context,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
// Validation errors keep the E2xx codes of queryir.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Compile errors
	ErrCodeNoQueries        = "E101" // No query struct
	ErrCodeInvalidPattern   = "E110" // Invalid where clause
	ErrCodeInvalidSelect    = "E111" // Invalid select list
	ErrCodeInvalidOrder     = "E112" // Invalid order_by
	ErrCodeInvalidScope     = "E113" // Invalid scope or graphs
	ErrCodeReferenceCycle   = "E114" // Subqueries reference each other
	ErrCodeInvalidAggregate = "E115" // Invalid group_by or having
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	if field == "cue" {
		return ErrCodeBuildFailed
	}
	if field == "query" {
		return ErrCodeNoQueries
	}
	_, rest, _ := strings.Cut(strings.TrimPrefix(field, "query."), ".")
	switch {
	case strings.HasPrefix(rest, "where"):
		return ErrCodeInvalidPattern
	case strings.HasPrefix(rest, "select"):
		return ErrCodeInvalidSelect
	case strings.HasPrefix(rest, "order_by"):
		return ErrCodeInvalidOrder
	case strings.HasPrefix(rest, "scope"), strings.HasPrefix(rest, "graphs"):
		return ErrCodeInvalidScope
	case strings.HasPrefix(rest, "group_by"), strings.HasPrefix(rest, "having"):
		return ErrCodeInvalidAggregate
	case rest == "" && strings.Contains(field, "."):
		return ErrCodeReferenceCycle
	default:
		return ErrCodeGeneric
	}
}

// loadQueriesOrFail loads queries for commands that need every query to
// be valid, turning the first problem into a command error.
func loadQueriesOrFail(path string) (*compiler.File, error) {
	result, errs := LoadQueries(path, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load queries", errs[0])
	}
	return result.File, nil
}

// selectQueries narrows f to the named queries, keeping f's order when
// names is empty.
func selectQueries(f *compiler.File, names []string) ([]string, map[string]*queryir.Query, error) {
	if len(names) == 0 {
		names = f.Names
	}
	trees := make(map[string]*queryir.Query, len(names))
	for _, name := range names {
		q, ok := f.Query(name)
		if !ok {
			return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown query %q", name))
		}
		trees[name] = q
	}
	return names, trees, nil
}
