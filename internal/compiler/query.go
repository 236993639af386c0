package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// File is the set of named queries compiled from one CUE value.
type File struct {
	Queries map[string]*queryir.Query
	Names   []string // sorted
}

// Query returns the named query.
func (f *File) Query(name string) (*queryir.Query, bool) {
	q, ok := f.Queries[name]
	return q, ok
}

// CompileFile compiles every field of the top-level "query" struct.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// A subquery given as a string refers to another query of the same file:
//
//	query: adults: {
//		select: ["x"]
//		where: triples: [["?x", "<http://example.org/age>", "?a"]]
//		where: filters: [{ge: ["?a", 18]}]
//	}
//	query: named: {
//		where: triples: [["?x", "<http://example.org/name>", "?n"]]
//		where: subqueries: ["adults"]
//	}
//
// References must not form a cycle.
func CompileFile(v cue.Value) (*File, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	queriesVal := v.LookupPath(cue.ParsePath("query"))
	if !queriesVal.Exists() {
		return nil, &CompileError{
			Field:   "query",
			Message: "no queries defined",
			Pos:     v.Pos(),
		}
	}
	iter, err := queriesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	c := &compiler{
		slots: make(map[string]*queryir.Query),
		refs:  make(map[string][]string),
	}
	f := &File{Queries: make(map[string]*queryir.Query)}
	defs := make(map[string]cue.Value)
	for iter.Next() {
		name := strings.Trim(iter.Label(), `"`)
		defs[name] = iter.Value()
		f.Names = append(f.Names, name)
	}
	slices.Sort(f.Names)

	for _, name := range f.Names {
		c.current = name
		q, err := c.query("query."+name, defs[name])
		if err != nil {
			return nil, err
		}
		f.Queries[name] = q
	}

	for _, name := range f.Names {
		for _, ref := range c.refs[name] {
			if _, ok := defs[ref]; !ok {
				return nil, &CompileError{
					Field:   fmt.Sprintf("query.%s.where.subqueries", name),
					Message: fmt.Sprintf("unknown query %q", ref),
					Pos:     defs[name].Pos(),
				}
			}
		}
	}
	if cycles := AnalyzeReferences(c.refs); len(cycles) > 0 {
		return nil, &CompileError{
			Field:   "query." + cycles[0].Path[0],
			Message: cycles[0].Message,
			Pos:     defs[cycles[0].Path[0]].Pos(),
		}
	}

	// Fill the shared slots handed out for references.
	for name, slot := range c.slots {
		*slot = *f.Queries[name]
	}
	return f, nil
}

// CompileQuery parses a single query struct. String subquery references
// are rejected; use CompileFile to resolve them.
//
// The CUE value should be the query struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`query: people: { where: triples: [...] }`)
//	q, err := CompileQuery(v.LookupPath(cue.ParsePath("query.people")))
func CompileQuery(v cue.Value) (*queryir.Query, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	field := v.Path().String()
	if field == "" {
		field = "query"
	}
	return (&compiler{}).query(field, v)
}

// compiler carries the reference bookkeeping of one CompileFile call.
// A nil slots map means references are not allowed.
type compiler struct {
	current string
	slots   map[string]*queryir.Query
	refs    map[string][]string
}

// reference returns the shared placeholder for a named query.
func (c *compiler) reference(field string, v cue.Value, name string) (*queryir.Query, error) {
	if c.slots == nil {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("reference to query %q can only be resolved when compiling a file", name),
			Pos:     v.Pos(),
		}
	}
	if !slices.Contains(c.refs[c.current], name) {
		c.refs[c.current] = append(c.refs[c.current], name)
	}
	slot, ok := c.slots[name]
	if !ok {
		slot = &queryir.Query{}
		c.slots[name] = slot
	}
	return slot, nil
}

func (c *compiler) query(field string, v cue.Value) (*queryir.Query, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   field,
			Message: "query must be a struct",
			Pos:     v.Pos(),
		}
	}
	q := &queryir.Query{}

	// Parse where (required)
	whereVal := v.LookupPath(cue.ParsePath("where"))
	if !whereVal.Exists() {
		return nil, &CompileError{
			Field:   field + ".where",
			Message: "where is required",
			Pos:     v.Pos(),
		}
	}
	body, err := c.pattern(field+".where", whereVal)
	if err != nil {
		return nil, err
	}
	q.Body = body

	// Parse select (optional, SELECT * when absent)
	if selVal := v.LookupPath(cue.ParsePath("select")); selVal.Exists() {
		q.Projection, err = parseProjection(field+".select", selVal)
		if err != nil {
			return nil, err
		}
	}

	if q.Distinct, err = optionalBool(v, "distinct"); err != nil {
		return nil, err
	}

	if scopeVal := v.LookupPath(cue.ParsePath("scope")); scopeVal.Exists() {
		scope, err := scopeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		q.Scope = queryir.Scope(scope)
	}

	if graphsVal := v.LookupPath(cue.ParsePath("graphs")); graphsVal.Exists() {
		iter, err := graphsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			t, err := parseTermValue(fmt.Sprintf("%s.graphs[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			q.Graphs = append(q.Graphs, t)
		}
		// Listing graphs implies FROM NAMED unless a scope says otherwise.
		if q.Scope == "" {
			q.Scope = queryir.ScopeNamed
		}
	}

	if orderVal := v.LookupPath(cue.ParsePath("order_by")); orderVal.Exists() {
		q.OrderBy, err = parseOrderBy(field+".order_by", orderVal)
		if err != nil {
			return nil, err
		}
	}

	// GROUP BY and HAVING are carried so that validation can report them.
	for _, agg := range []struct {
		name string
		dst  *[]queryir.Expr
	}{{"group_by", &q.GroupBy}, {"having", &q.Having}} {
		aggVal := v.LookupPath(cue.ParsePath(agg.name))
		if !aggVal.Exists() {
			continue
		}
		iter, err := aggVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			e, err := parseExpr(fmt.Sprintf("%s.%s[%d]", field, agg.name, i), iter.Value())
			if err != nil {
				return nil, err
			}
			*agg.dst = append(*agg.dst, e)
		}
	}

	return q, nil
}

// parseProjection accepts "x", "?x" or {name: "y", expr: ...} entries.
func parseProjection(field string, v cue.Value) ([]queryir.Projection, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []queryir.Projection
	for i := 0; iter.Next(); i++ {
		ef := fmt.Sprintf("%s[%d]", field, i)
		item := iter.Value()
		if s, err := item.String(); err == nil {
			out = append(out, queryir.Projection{Name: strings.TrimPrefix(s, "?")})
			continue
		}
		nameVal := item.LookupPath(cue.ParsePath("name"))
		name, err := nameVal.String()
		if err != nil {
			return nil, &CompileError{
				Field:   ef,
				Message: "projection must be a variable name or {name, expr}",
				Pos:     item.Pos(),
			}
		}
		p := queryir.Projection{Name: strings.TrimPrefix(name, "?")}
		if exprVal := item.LookupPath(cue.ParsePath("expr")); exprVal.Exists() {
			p.Expr, err = parseExpr(ef+".expr", exprVal)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// parseOrderBy accepts expressions or {expr: ..., desc: true} entries.
func parseOrderBy(field string, v cue.Value) ([]queryir.OrderKey, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []queryir.OrderKey
	for i := 0; iter.Next(); i++ {
		ef := fmt.Sprintf("%s[%d]", field, i)
		item := iter.Value()
		exprVal := item.LookupPath(cue.ParsePath("expr"))
		if !exprVal.Exists() {
			e, err := parseExpr(ef, item)
			if err != nil {
				return nil, err
			}
			out = append(out, queryir.OrderKey{Expr: e})
			continue
		}
		e, err := parseExpr(ef+".expr", exprVal)
		if err != nil {
			return nil, err
		}
		desc, err := optionalBool(item, "desc")
		if err != nil {
			return nil, err
		}
		out = append(out, queryir.OrderKey{Expr: e, Descending: desc})
	}
	return out, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(name))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// parseTermValue reads a term from a string in the notation of ir.ParseTerm,
// an integer or a boolean.
func parseTermValue(field string, v cue.Value) (ir.Term, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t, err := ir.ParseTerm(s)
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return t, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IntLiteral(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.BoolLiteral(b), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: `float constants are not supported, write a typed literal such as "1.5"^^<http://www.w3.org/2001/XMLSchema#decimal>`,
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expected a term, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
