package queryir

import "github.com/roach88/sparqlflow/internal/ir"

// Expr is a filter or projection expression.
//
// Sealed: only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// ArithOp is an arithmetic operator over numeric literals.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// VarExpr is the value bound to a variable. Evaluating an unbound variable
// is an error.
type VarExpr struct {
	Name string
}

func (VarExpr) exprNode() {}

// ConstExpr is a constant term.
type ConstExpr struct {
	Term ir.Term
}

func (ConstExpr) exprNode() {}

// Compare compares two values.
type Compare struct {
	Op   CompareOp
	L, R Expr
}

func (Compare) exprNode() {}

// And is logical conjunction with SPARQL error semantics: false wins over an
// error, otherwise an error propagates.
type And struct {
	Operands []Expr
}

func (And) exprNode() {}

// Or is logical disjunction: true wins over an error.
type Or struct {
	Operands []Expr
}

func (Or) exprNode() {}

// Not is logical negation.
type Not struct {
	Operand Expr
}

func (Not) exprNode() {}

// Bound tests whether a variable is bound. It never errors.
type Bound struct {
	Name string
}

func (Bound) exprNode() {}

// IsIRI tests whether the operand is an IRI.
type IsIRI struct {
	Operand Expr
}

func (IsIRI) exprNode() {}

// IsBlank tests whether the operand is a blank node.
type IsBlank struct {
	Operand Expr
}

func (IsBlank) exprNode() {}

// IsLiteral tests whether the operand is a literal.
type IsLiteral struct {
	Operand Expr
}

func (IsLiteral) exprNode() {}

// Str is the lexical form of an IRI or literal as an xsd:string literal.
type Str struct {
	Operand Expr
}

func (Str) exprNode() {}

// Regex matches the lexical form of a literal against Pattern.
// Flags may contain "i", "m" and "s".
type Regex struct {
	Operand Expr
	Pattern string
	Flags   string
}

func (Regex) exprNode() {}

// Arith applies an arithmetic operator to two numeric literals.
type Arith struct {
	Op   ArithOp
	L, R Expr
}

func (Arith) exprNode() {}

// Eq builds Compare{OpEq, l, r}.
func Eq(l, r Expr) Compare {
	return Compare{Op: OpEq, L: l, R: r}
}

// Ref is shorthand for VarExpr{Name: name}.
func Ref(name string) VarExpr {
	return VarExpr{Name: name}
}

// Const is shorthand for ConstExpr{Term: t}.
func Const(t ir.Term) ConstExpr {
	return ConstExpr{Term: t}
}
