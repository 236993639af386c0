package queryir

import (
	"fmt"
	"regexp"

	"github.com/roach88/sparqlflow/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrUnboundProjection   = "E201" // projected variable never bound by the body
	ErrMalformedPath       = "E202" // property path step is not an Exact or Var predicate
	ErrEmptyPredicateSet   = "E203" // Alts / Negated with no IRIs
	ErrAggregation         = "E204" // GROUP BY / HAVING are not supported
	ErrDuplicateProjection = "E205" // the same output name projected twice
	ErrInvalidTerm         = "E206" // term not allowed in this slot
	ErrInvalidVariable     = "E207" // empty variable name
	ErrInvalidRegex        = "E208" // regex pattern or flags do not compile
	ErrInvalidScope        = "E209" // unknown dataset scope
	ErrMissingNode         = "E210" // nil position, predicate, filter or expression
	ErrProjectionShadows   = "E211" // computed projection reuses a body variable
	ErrInvalidOperator     = "E212" // unknown comparison or arithmetic operator
)

// ValidationError is a structural problem in a query tree.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks q against the rules the engine relies on.
// Returns all errors found (does not fail-fast). A nil result means the
// engine may prepare q.
//
// Validate is a pure function with no side effects.
func Validate(q *Query) []ValidationError {
	v := &validator{}
	if q == nil {
		v.add("query", ErrMissingNode, "query is nil")
		return v.errs
	}
	v.validateQuery("query", q)
	return v.errs
}

// validator accumulates errors during traversal.
type validator struct {
	errs []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) validateQuery(field string, q *Query) {
	v.validatePattern(field+".body", q.Body)

	bodyVars := map[string]bool{}
	for _, n := range q.Body.Variables() {
		bodyVars[n] = true
	}

	seen := map[string]bool{}
	for i, p := range q.Projection {
		pf := fmt.Sprintf("%s.select[%d]", field, i)
		if p.Name == "" {
			v.add(pf, ErrInvalidVariable, "projection name is empty")
			continue
		}
		if seen[p.Name] {
			v.add(pf, ErrDuplicateProjection, "?%s projected more than once", p.Name)
		}
		seen[p.Name] = true

		if p.Expr == nil {
			if !bodyVars[p.Name] {
				v.add(pf, ErrUnboundProjection, "?%s is not bound by the query body", p.Name)
			}
			continue
		}
		if bodyVars[p.Name] {
			v.add(pf, ErrProjectionShadows, "?%s is already bound by the query body", p.Name)
		}
		v.validateExpr(pf+".expr", p.Expr)
	}

	if len(q.GroupBy) > 0 {
		v.add(field+".group_by", ErrAggregation, "GROUP BY is not supported")
	}
	if len(q.Having) > 0 {
		v.add(field+".having", ErrAggregation, "HAVING is not supported")
	}
	for i, k := range q.OrderBy {
		v.validateExpr(fmt.Sprintf("%s.order_by[%d]", field, i), k.Expr)
	}

	switch q.Scope {
	case "", ScopeUnion, ScopeDefault, ScopeNamed:
	default:
		v.add(field+".scope", ErrInvalidScope, "unknown scope %q (want union, default or named)", q.Scope)
	}
	for i, g := range q.Graphs {
		gf := fmt.Sprintf("%s.graphs[%d]", field, i)
		switch g.(type) {
		case ir.NamedTerm, ir.BlankTerm, ir.DefaultGraph:
		case nil:
			v.add(gf, ErrMissingNode, "graph is nil")
		default:
			v.add(gf, ErrInvalidTerm, "graph name %s must be an IRI or blank node", g)
		}
	}
}

func (v *validator) validatePattern(field string, g GraphPattern) {
	for i, tp := range g.Triples {
		v.validateTriple(fmt.Sprintf("%s.triples[%d]", field, i), tp)
	}
	for i, f := range g.Filters {
		v.validateFilter(fmt.Sprintf("%s.filters[%d]", field, i), f)
	}
	for i, u := range g.Unions {
		uf := fmt.Sprintf("%s.unions[%d]", field, i)
		if len(u.Branches) == 0 {
			v.add(uf, ErrMissingNode, "union has no branches")
		}
		for j, b := range u.Branches {
			v.validatePattern(fmt.Sprintf("%s.branches[%d]", uf, j), b)
		}
	}
	for i, o := range g.Optionals {
		v.validatePattern(fmt.Sprintf("%s.optionals[%d]", field, i), o)
	}
	for i, s := range g.Segments {
		sf := fmt.Sprintf("%s.segments[%d]", field, i)
		if s == nil {
			v.add(sf, ErrMissingNode, "nested select is nil")
			continue
		}
		v.validateQuery(sf, s)
	}
}

func (v *validator) validateTriple(field string, tp TriplePattern) {
	v.validatePosition(field+".subject", tp.Subject)
	v.validatePosition(field+".object", tp.Object)
	v.validatePredicate(field+".predicate", tp.Predicate, false)
}

func (v *validator) validatePosition(field string, p Position) {
	switch pos := p.(type) {
	case nil:
		v.add(field, ErrMissingNode, "position is nil")
	case Var:
		if pos.Name == "" {
			v.add(field, ErrInvalidVariable, "variable name is empty")
		}
	case Exact:
		switch pos.Term.(type) {
		case nil:
			v.add(field, ErrMissingNode, "term is nil")
		case ir.DefaultGraph:
			v.add(field, ErrInvalidTerm, "DEFAULT is only valid as a graph name")
		}
	}
}

func (v *validator) validatePredicate(field string, p Predicate, inPath bool) {
	switch pred := p.(type) {
	case nil:
		if inPath {
			v.add(field, ErrMalformedPath, "path step is nil")
		} else {
			v.add(field, ErrMissingNode, "predicate is nil")
		}
	case Var:
		if pred.Name == "" {
			v.add(field, ErrInvalidVariable, "variable name is empty")
		}
	case Exact:
		if _, ok := pred.Term.(ir.NamedTerm); !ok {
			v.add(field, ErrInvalidTerm, "predicate must be an IRI, got %v", pred.Term)
		}
	case Alts:
		if inPath {
			v.add(field, ErrMalformedPath, "path step must be an IRI or variable, got alternatives")
			return
		}
		if len(pred.IRIs) == 0 {
			v.add(field, ErrEmptyPredicateSet, "alternatives list is empty")
		}
		v.validateIRIs(field, pred.IRIs)
	case Negated:
		if inPath {
			v.add(field, ErrMalformedPath, "path step must be an IRI or variable, got negated set")
			return
		}
		if len(pred.IRIs) == 0 {
			v.add(field, ErrEmptyPredicateSet, "negated set is empty")
		}
		v.validateIRIs(field, pred.IRIs)
	case ZeroOrMore:
		if inPath {
			v.add(field, ErrMalformedPath, "nested repetition is not supported")
			return
		}
		v.validatePredicate(field+".step", pred.Step, true)
	case OneOrMore:
		if inPath {
			v.add(field, ErrMalformedPath, "nested repetition is not supported")
			return
		}
		v.validatePredicate(field+".step", pred.Step, true)
	}
}

func (v *validator) validateIRIs(field string, iris []ir.NamedTerm) {
	for i, n := range iris {
		if n.IRI == "" {
			v.add(fmt.Sprintf("%s[%d]", field, i), ErrInvalidTerm, "IRI is empty")
		}
	}
}

func (v *validator) validateFilter(field string, f Filter) {
	switch flt := f.(type) {
	case nil:
		v.add(field, ErrMissingNode, "filter is nil")
	case ExprFilter:
		v.validateExpr(field+".expr", flt.Expr)
	case Exists:
		v.validatePattern(field+".exists", flt.Pattern)
	case NotExists:
		v.validatePattern(field+".not_exists", flt.Pattern)
	}
}

func (v *validator) validateExpr(field string, e Expr) {
	switch ex := e.(type) {
	case nil:
		v.add(field, ErrMissingNode, "expression is nil")
	case VarExpr:
		if ex.Name == "" {
			v.add(field, ErrInvalidVariable, "variable name is empty")
		}
	case Bound:
		if ex.Name == "" {
			v.add(field, ErrInvalidVariable, "variable name is empty")
		}
	case ConstExpr:
		if ex.Term == nil {
			v.add(field, ErrMissingNode, "constant is nil")
		}
	case Compare:
		switch ex.Op {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		default:
			v.add(field, ErrInvalidOperator, "unknown comparison operator %q", ex.Op)
		}
		v.validateExpr(field+".left", ex.L)
		v.validateExpr(field+".right", ex.R)
	case Arith:
		switch ex.Op {
		case OpAdd, OpSub, OpMul, OpDiv:
		default:
			v.add(field, ErrInvalidOperator, "unknown arithmetic operator %q", ex.Op)
		}
		v.validateExpr(field+".left", ex.L)
		v.validateExpr(field+".right", ex.R)
	case And:
		for i, o := range ex.Operands {
			v.validateExpr(fmt.Sprintf("%s.and[%d]", field, i), o)
		}
	case Or:
		for i, o := range ex.Operands {
			v.validateExpr(fmt.Sprintf("%s.or[%d]", field, i), o)
		}
	case Not:
		v.validateExpr(field+".not", ex.Operand)
	case IsIRI:
		v.validateExpr(field+".operand", ex.Operand)
	case IsBlank:
		v.validateExpr(field+".operand", ex.Operand)
	case IsLiteral:
		v.validateExpr(field+".operand", ex.Operand)
	case Str:
		v.validateExpr(field+".operand", ex.Operand)
	case Regex:
		v.validateExpr(field+".operand", ex.Operand)
		if _, err := CompileRegex(ex.Pattern, ex.Flags); err != nil {
			v.add(field, ErrInvalidRegex, "%v", err)
		}
	}
}

// CompileRegex compiles a SPARQL REGEX pattern with its flags.
func CompileRegex(pattern, flags string) (*regexp.Regexp, error) {
	prefix := ""
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			prefix += string(f)
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex %q: %w", pattern, err)
	}
	return re, nil
}
