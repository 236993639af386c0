package queryir

import "slices"

// Variables returns the variable names bound by the pattern, in slot order
// without duplicates.
func (tp TriplePattern) Variables() []string {
	var names []string
	add := func(n string) {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	if v, ok := tp.Subject.(Var); ok {
		add(v.Name)
	}
	if n, ok := predicateVar(tp.Predicate); ok {
		add(n)
	}
	if v, ok := tp.Object.(Var); ok {
		add(v.Name)
	}
	return names
}

// predicateVar returns the variable bound by a predicate, looking through
// path steps.
func predicateVar(p Predicate) (string, bool) {
	switch v := p.(type) {
	case Var:
		return v.Name, true
	case ZeroOrMore:
		return predicateVar(v.Step)
	case OneOrMore:
		return predicateVar(v.Step)
	default:
		return "", false
	}
}

// Variables returns every variable that may be bound by a solution of g,
// sorted. Filters bind nothing; optional and union variables count.
func (g GraphPattern) Variables() []string {
	set := map[string]struct{}{}
	g.collectVariables(set)
	return sortedKeys(set)
}

func (g GraphPattern) collectVariables(set map[string]struct{}) {
	for _, tp := range g.Triples {
		for _, n := range tp.Variables() {
			set[n] = struct{}{}
		}
	}
	for _, u := range g.Unions {
		for _, b := range u.Branches {
			b.collectVariables(set)
		}
	}
	for _, o := range g.Optionals {
		o.collectVariables(set)
	}
	for _, s := range g.Segments {
		if s == nil {
			continue
		}
		for _, n := range s.OutputNames() {
			set[n] = struct{}{}
		}
	}
}

// TripleVariables returns the variables bound by the pattern's own triples.
func (g GraphPattern) TripleVariables() []string {
	set := map[string]struct{}{}
	for _, tp := range g.Triples {
		for _, n := range tp.Variables() {
			set[n] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// ExprVariables returns the variables referenced by e, sorted.
func ExprVariables(e Expr) []string {
	set := map[string]struct{}{}
	collectExprVars(e, set)
	return sortedKeys(set)
}

func collectExprVars(e Expr, set map[string]struct{}) {
	switch v := e.(type) {
	case VarExpr:
		set[v.Name] = struct{}{}
	case Bound:
		set[v.Name] = struct{}{}
	case ConstExpr:
	case Compare:
		collectExprVars(v.L, set)
		collectExprVars(v.R, set)
	case Arith:
		collectExprVars(v.L, set)
		collectExprVars(v.R, set)
	case And:
		for _, o := range v.Operands {
			collectExprVars(o, set)
		}
	case Or:
		for _, o := range v.Operands {
			collectExprVars(o, set)
		}
	case Not:
		collectExprVars(v.Operand, set)
	case IsIRI:
		collectExprVars(v.Operand, set)
	case IsBlank:
		collectExprVars(v.Operand, set)
	case IsLiteral:
		collectExprVars(v.Operand, set)
	case Str:
		collectExprVars(v.Operand, set)
	case Regex:
		collectExprVars(v.Operand, set)
	}
}

// FilterVariables returns the variables referenced by a filter. For EXISTS
// and NOT EXISTS this is the variables used by the inner pattern's own
// expression filters.
func FilterVariables(f Filter) []string {
	set := map[string]struct{}{}
	switch v := f.(type) {
	case ExprFilter:
		collectExprVars(v.Expr, set)
	case Exists:
		collectInnerFilterVars(v.Pattern, set)
	case NotExists:
		collectInnerFilterVars(v.Pattern, set)
	}
	return sortedKeys(set)
}

func collectInnerFilterVars(g GraphPattern, set map[string]struct{}) {
	for _, f := range g.Filters {
		for _, n := range FilterVariables(f) {
			set[n] = struct{}{}
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
