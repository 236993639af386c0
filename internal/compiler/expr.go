package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/sparqlflow/internal/queryir"
)

var compareOps = map[string]queryir.CompareOp{
	"eq": queryir.OpEq,
	"ne": queryir.OpNe,
	"lt": queryir.OpLt,
	"le": queryir.OpLe,
	"gt": queryir.OpGt,
	"ge": queryir.OpGe,
}

var arithOps = map[string]queryir.ArithOp{
	"add": queryir.OpAdd,
	"sub": queryir.OpSub,
	"mul": queryir.OpMul,
	"div": queryir.OpDiv,
}

// parseExpr reads an expression. Strings starting with "?" are variables,
// other scalars are constants, and structs hold exactly one operator:
//
//	{eq: [a, b]}  {ne: ...} {lt: ...} {le: ...} {gt: ...} {ge: ...}
//	{add: [a, b]} {sub: ...} {mul: ...} {div: ...}
//	{and: [...]}  {or: [...]}  {not: e}
//	{bound: "?x"} {is_iri: e} {is_blank: e} {is_literal: e} {str: e}
//	{regex: e, pattern: "^A", flags: "i"}
func parseExpr(field string, v cue.Value) (queryir.Expr, error) {
	if v.IncompleteKind() != cue.StructKind {
		if s, err := v.String(); err == nil {
			if name, ok := variableName(s); ok {
				return queryir.Ref(name), nil
			}
		}
		t, err := parseTermValue(field, v)
		if err != nil {
			return nil, err
		}
		return queryir.Const(t), nil
	}

	// Regex carries its pattern and flags next to the operand.
	if rv := v.LookupPath(cue.ParsePath("regex")); rv.Exists() {
		return parseRegex(field, v, rv)
	}

	op, arg, err := singleField(field, v)
	if err != nil {
		return nil, err
	}
	opField := field + "." + op

	if cop, ok := compareOps[op]; ok {
		l, r, err := parsePair(opField, arg)
		if err != nil {
			return nil, err
		}
		return queryir.Compare{Op: cop, L: l, R: r}, nil
	}
	if aop, ok := arithOps[op]; ok {
		l, r, err := parsePair(opField, arg)
		if err != nil {
			return nil, err
		}
		return queryir.Arith{Op: aop, L: l, R: r}, nil
	}

	switch op {
	case "and", "or":
		operands, err := parseList(opField, arg)
		if err != nil {
			return nil, err
		}
		if op == "and" {
			return queryir.And{Operands: operands}, nil
		}
		return queryir.Or{Operands: operands}, nil
	case "bound":
		s, err := arg.String()
		if err != nil {
			return nil, &CompileError{Field: opField, Message: "bound takes a variable name", Pos: arg.Pos()}
		}
		if name, ok := variableName(s); ok {
			s = name
		}
		return queryir.Bound{Name: s}, nil
	case "not", "is_iri", "is_blank", "is_literal", "str":
		e, err := parseExpr(opField, arg)
		if err != nil {
			return nil, err
		}
		switch op {
		case "not":
			return queryir.Not{Operand: e}, nil
		case "is_iri":
			return queryir.IsIRI{Operand: e}, nil
		case "is_blank":
			return queryir.IsBlank{Operand: e}, nil
		case "is_literal":
			return queryir.IsLiteral{Operand: e}, nil
		default:
			return queryir.Str{Operand: e}, nil
		}
	}

	return nil, &CompileError{
		Field:   field,
		Message: fmt.Sprintf("unknown operator %q", op),
		Pos:     v.Pos(),
	}
}

func parseRegex(field string, v, operand cue.Value) (queryir.Expr, error) {
	e, err := parseExpr(field+".regex", operand)
	if err != nil {
		return nil, err
	}
	patVal := v.LookupPath(cue.ParsePath("pattern"))
	pattern, err := patVal.String()
	if err != nil {
		return nil, &CompileError{
			Field:   field + ".pattern",
			Message: "regex requires a string pattern",
			Pos:     v.Pos(),
		}
	}
	re := queryir.Regex{Operand: e, Pattern: pattern}
	if flagsVal := v.LookupPath(cue.ParsePath("flags")); flagsVal.Exists() {
		if re.Flags, err = flagsVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return re, nil
}

// singleField returns the only field of an operator struct.
func singleField(field string, v cue.Value) (string, cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return "", cue.Value{}, formatCUEError(err)
	}
	var labels []string
	var arg cue.Value
	for iter.Next() {
		labels = append(labels, iter.Label())
		arg = iter.Value()
	}
	if len(labels) != 1 {
		slices.Sort(labels)
		return "", cue.Value{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expression must have exactly one operator, got %v", labels),
			Pos:     v.Pos(),
		}
	}
	return labels[0], arg, nil
}

func parseList(field string, v cue.Value) ([]queryir.Expr, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "operands must be a list", Pos: v.Pos()}
	}
	var out []queryir.Expr
	for i := 0; iter.Next(); i++ {
		e, err := parseExpr(fmt.Sprintf("%s[%d]", field, i), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func parsePair(field string, v cue.Value) (queryir.Expr, queryir.Expr, error) {
	operands, err := parseList(field, v)
	if err != nil {
		return nil, nil, err
	}
	if len(operands) != 2 {
		return nil, nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("operator takes two operands, got %d", len(operands)),
			Pos:     v.Pos(),
		}
	}
	return operands[0], operands[1], nil
}
