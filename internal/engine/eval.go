package engine

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// evalFn evaluates a compiled expression against a row. A non-nil error is
// a SPARQL evaluation error (type error, unbound variable, division by
// zero), not a programming error.
type evalFn func(r row) (ir.Term, error)

var (
	errUnbound      = errors.New("unbound variable")
	errDivideByZero = errors.New("division by zero")
)

// typeError reports an operand of the wrong kind.
func typeError(format string, args ...any) error {
	return fmt.Errorf("type error: "+format, args...)
}

// compileExpr resolves variable names to binding ids and returns a closure.
func compileExpr(ctx *QueryContext, e queryir.Expr) (evalFn, error) {
	switch v := e.(type) {
	case queryir.VarExpr:
		b := ctx.Binding(v.Name)
		return func(r row) (ir.Term, error) {
			id, ok := r.get(b)
			if !ok {
				return nil, errUnbound
			}
			return ctx.TermOf(id), nil
		}, nil

	case queryir.ConstExpr:
		t := v.Term
		return func(row) (ir.Term, error) { return t, nil }, nil

	case queryir.Bound:
		b := ctx.Binding(v.Name)
		return func(r row) (ir.Term, error) {
			_, ok := r.get(b)
			return ir.BoolLiteral(ok), nil
		}, nil

	case queryir.Compare:
		l, rr, err := compilePair(ctx, v.L, v.R)
		if err != nil {
			return nil, err
		}
		op := v.Op
		return func(r row) (ir.Term, error) {
			a, err := l(r)
			if err != nil {
				return nil, err
			}
			b, err := rr(r)
			if err != nil {
				return nil, err
			}
			ok, err := compareTerms(op, a, b)
			if err != nil {
				return nil, err
			}
			return ir.BoolLiteral(ok), nil
		}, nil

	case queryir.And:
		ops, err := compileAll(ctx, v.Operands)
		if err != nil {
			return nil, err
		}
		return func(r row) (ir.Term, error) {
			var firstErr error
			for _, op := range ops {
				ok, err := ebvOf(op, r)
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if !ok {
					return ir.BoolLiteral(false), nil
				}
			}
			if firstErr != nil {
				return nil, firstErr
			}
			return ir.BoolLiteral(true), nil
		}, nil

	case queryir.Or:
		ops, err := compileAll(ctx, v.Operands)
		if err != nil {
			return nil, err
		}
		return func(r row) (ir.Term, error) {
			var firstErr error
			for _, op := range ops {
				ok, err := ebvOf(op, r)
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if ok {
					return ir.BoolLiteral(true), nil
				}
			}
			if firstErr != nil {
				return nil, firstErr
			}
			return ir.BoolLiteral(false), nil
		}, nil

	case queryir.Not:
		op, err := compileExpr(ctx, v.Operand)
		if err != nil {
			return nil, err
		}
		return func(r row) (ir.Term, error) {
			ok, err := ebvOf(op, r)
			if err != nil {
				return nil, err
			}
			return ir.BoolLiteral(!ok), nil
		}, nil

	case queryir.IsIRI:
		return compileKindTest(ctx, v.Operand, ir.KindNamed)
	case queryir.IsBlank:
		return compileKindTest(ctx, v.Operand, ir.KindBlank)
	case queryir.IsLiteral:
		return compileKindTest(ctx, v.Operand, ir.KindLiteral)

	case queryir.Str:
		op, err := compileExpr(ctx, v.Operand)
		if err != nil {
			return nil, err
		}
		return func(r row) (ir.Term, error) {
			t, err := op(r)
			if err != nil {
				return nil, err
			}
			s, err := lexical(t)
			if err != nil {
				return nil, err
			}
			return ir.NewLiteral(s), nil
		}, nil

	case queryir.Regex:
		op, err := compileExpr(ctx, v.Operand)
		if err != nil {
			return nil, err
		}
		re, err := queryir.CompileRegex(v.Pattern, v.Flags)
		if err != nil {
			return nil, err
		}
		return func(r row) (ir.Term, error) {
			t, err := op(r)
			if err != nil {
				return nil, err
			}
			lit, ok := t.(ir.Literal)
			if !ok {
				return nil, typeError("regex on %s", t.Kind())
			}
			return ir.BoolLiteral(re.MatchString(lit.Value)), nil
		}, nil

	case queryir.Arith:
		l, rr, err := compilePair(ctx, v.L, v.R)
		if err != nil {
			return nil, err
		}
		op := v.Op
		return func(r row) (ir.Term, error) {
			a, err := l(r)
			if err != nil {
				return nil, err
			}
			b, err := rr(r)
			if err != nil {
				return nil, err
			}
			return arith(op, a, b)
		}, nil

	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}

func compilePair(ctx *QueryContext, l, r queryir.Expr) (evalFn, evalFn, error) {
	lf, err := compileExpr(ctx, l)
	if err != nil {
		return nil, nil, err
	}
	rf, err := compileExpr(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	return lf, rf, nil
}

func compileAll(ctx *QueryContext, es []queryir.Expr) ([]evalFn, error) {
	out := make([]evalFn, len(es))
	for i, e := range es {
		f, err := compileExpr(ctx, e)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func compileKindTest(ctx *QueryContext, e queryir.Expr, kind ir.TermKind) (evalFn, error) {
	op, err := compileExpr(ctx, e)
	if err != nil {
		return nil, err
	}
	return func(r row) (ir.Term, error) {
		t, err := op(r)
		if err != nil {
			return nil, err
		}
		return ir.BoolLiteral(t.Kind() == kind), nil
	}, nil
}

// predicate is a compiled filter condition.
type predicate func(r row) bool

// compilePredicate compiles e as a filter: an error or a false effective
// boolean value rejects the row.
func compilePredicate(ctx *QueryContext, e queryir.Expr) (predicate, error) {
	f, err := compileExpr(ctx, e)
	if err != nil {
		return nil, err
	}
	return func(r row) bool {
		ok, err := ebvOf(f, r)
		return err == nil && ok
	}, nil
}

func allOf(ps []predicate) predicate {
	return func(r row) bool {
		for _, p := range ps {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

func ebvOf(f evalFn, r row) (bool, error) {
	t, err := f(r)
	if err != nil {
		return false, err
	}
	return effectiveBool(t)
}

// effectiveBool computes the SPARQL effective boolean value.
func effectiveBool(t ir.Term) (bool, error) {
	lit, ok := t.(ir.Literal)
	if !ok {
		return false, typeError("no boolean value for %s", t.Kind())
	}
	switch {
	case lit.Datatype == ir.XSDBoolean:
		switch lit.Value {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, nil
	case lit.Datatype == ir.XSDString:
		return lit.Value != "", nil
	case isNumeric(lit.Datatype):
		n, err := parseNumber(lit)
		if err != nil {
			return false, nil
		}
		return n.f != 0 && !math.IsNaN(n.f), nil
	default:
		return false, typeError("no boolean value for datatype %s", lit.Datatype)
	}
}

// numeric ranks: integer < decimal < double.
const (
	rankInteger = iota + 1
	rankDecimal
	rankDouble
)

func xsd(local string) ir.NamedTerm {
	return ir.IRI("http://www.w3.org/2001/XMLSchema#" + local)
}

var numericRanks = map[ir.NamedTerm]int{
	xsd("integer"): rankInteger,
	xsd("int"):     rankInteger,
	xsd("long"):    rankInteger,
	xsd("short"):   rankInteger,
	xsd("decimal"): rankDecimal,
	xsd("double"):  rankDouble,
	xsd("float"):   rankDouble,
}

func isNumeric(dt ir.NamedTerm) bool {
	_, ok := numericRanks[dt]
	return ok
}

type number struct {
	rank int
	i    int64
	f    float64
}

func parseNumber(lit ir.Literal) (number, error) {
	rank, ok := numericRanks[lit.Datatype]
	if !ok {
		return number{}, typeError("%s is not numeric", lit)
	}
	if rank == rankInteger {
		i, err := strconv.ParseInt(strings.TrimSpace(lit.Value), 10, 64)
		if err != nil {
			return number{}, typeError("invalid integer %q", lit.Value)
		}
		return number{rank: rank, i: i, f: float64(i)}, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64)
	if err != nil {
		return number{}, typeError("invalid number %q", lit.Value)
	}
	return number{rank: rank, f: f}, nil
}

func numberOf(t ir.Term) (number, bool) {
	lit, ok := t.(ir.Literal)
	if !ok || !isNumeric(lit.Datatype) {
		return number{}, false
	}
	n, err := parseNumber(lit)
	return n, err == nil
}

func compareNumbers(a, b number) int {
	if a.rank == rankInteger && b.rank == rankInteger {
		return cmp.Compare(a.i, b.i)
	}
	return cmp.Compare(a.f, b.f)
}

// compareTerms applies a comparison operator. Equality falls back to term
// identity; ordering is defined for numbers, strings and booleans only.
func compareTerms(op queryir.CompareOp, a, b ir.Term) (bool, error) {
	na, aNum := numberOf(a)
	nb, bNum := numberOf(b)
	var c int
	switch {
	case aNum && bNum:
		c = compareNumbers(na, nb)
	case op == queryir.OpEq:
		return a == b, nil
	case op == queryir.OpNe:
		return a != b, nil
	default:
		la, okA := a.(ir.Literal)
		lb, okB := b.(ir.Literal)
		if !okA || !okB || la.Datatype != lb.Datatype {
			return false, typeError("cannot order %s and %s", a, b)
		}
		switch la.Datatype {
		case ir.XSDString:
			c = strings.Compare(la.Value, lb.Value)
		case ir.XSDBoolean:
			ba, _ := effectiveBool(la)
			bb, _ := effectiveBool(lb)
			c = cmp.Compare(boolRank(ba), boolRank(bb))
		default:
			return false, typeError("cannot order datatype %s", la.Datatype)
		}
	}
	switch op {
	case queryir.OpEq:
		return c == 0, nil
	case queryir.OpNe:
		return c != 0, nil
	case queryir.OpLt:
		return c < 0, nil
	case queryir.OpLe:
		return c <= 0, nil
	case queryir.OpGt:
		return c > 0, nil
	case queryir.OpGe:
		return c >= 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func arith(op queryir.ArithOp, a, b ir.Term) (ir.Term, error) {
	na, okA := numberOf(a)
	nb, okB := numberOf(b)
	if !okA || !okB {
		return nil, typeError("arithmetic on %s and %s", a, b)
	}
	rank := max(na.rank, nb.rank)
	if op == queryir.OpDiv {
		if nb.f == 0 {
			return nil, errDivideByZero
		}
		rank = max(rank, rankDecimal)
	}
	if rank == rankInteger {
		var v int64
		switch op {
		case queryir.OpAdd:
			v = na.i + nb.i
		case queryir.OpSub:
			v = na.i - nb.i
		case queryir.OpMul:
			v = na.i * nb.i
		default:
			return nil, fmt.Errorf("unknown operator %q", op)
		}
		return ir.IntLiteral(v), nil
	}
	var f float64
	switch op {
	case queryir.OpAdd:
		f = na.f + nb.f
	case queryir.OpSub:
		f = na.f - nb.f
	case queryir.OpMul:
		f = na.f * nb.f
	case queryir.OpDiv:
		f = na.f / nb.f
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
	if rank == rankDouble {
		return ir.TypedLiteral(strconv.FormatFloat(f, 'E', -1, 64), ir.XSDDouble), nil
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return ir.TypedLiteral(s, ir.XSDDecimal), nil
}

// lexical returns the string form used by STR.
func lexical(t ir.Term) (string, error) {
	switch v := t.(type) {
	case ir.NamedTerm:
		return v.IRI, nil
	case ir.Literal:
		return v.Value, nil
	default:
		return "", typeError("str of %s", t.Kind())
	}
}

// orderRank places term kinds for ORDER BY: unbound, blank, IRI, literal.
func orderRank(t ir.Term) int {
	if t == nil {
		return 0
	}
	switch t.Kind() {
	case ir.KindBlank:
		return 1
	case ir.KindNamed:
		return 2
	case ir.KindLiteral:
		return 3
	default:
		return 4
	}
}

// compareOrder is the total order used by ORDER BY. A nil term is unbound.
func compareOrder(a, b ir.Term) int {
	if c := cmp.Compare(orderRank(a), orderRank(b)); c != 0 || a == nil {
		return c
	}
	switch x := a.(type) {
	case ir.BlankTerm:
		return cmp.Compare(x.ID, b.(ir.BlankTerm).ID)
	case ir.NamedTerm:
		return strings.Compare(x.IRI, b.(ir.NamedTerm).IRI)
	case ir.Literal:
		y := b.(ir.Literal)
		na, okA := numberOf(x)
		nb, okB := numberOf(y)
		switch {
		case okA && okB:
			if c := compareNumbers(na, nb); c != 0 {
				return c
			}
		case okA:
			return -1
		case okB:
			return 1
		}
		if c := strings.Compare(x.Value, y.Value); c != 0 {
			return c
		}
		return strings.Compare(x.Datatype.IRI, y.Datatype.IRI)
	default:
		return 0
	}
}
