package compiler

import (
	"strings"

	"github.com/roach88/sparqlflow/internal/queryir"
)

// Validate validates every query of a compiled file.
// Returns all errors found (does not fail-fast), ordered by query name.
// Field paths are prefixed with the query's path in the file, e.g.
// "query.friends.select[0]".
func Validate(f *File) []queryir.ValidationError {
	var errs []queryir.ValidationError
	for _, name := range f.Names {
		for _, e := range queryir.Validate(f.Queries[name]) {
			rest, _ := strings.CutPrefix(e.Field, "query")
			e.Field = "query." + name + rest
			errs = append(errs, e)
		}
	}
	return errs
}
