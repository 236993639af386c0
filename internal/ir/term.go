package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// TermKind identifies the variant of a Term.
type TermKind uint8

const (
	// KindNamed is an IRI.
	KindNamed TermKind = iota + 1
	// KindBlank is a blank node.
	KindBlank
	// KindLiteral is a typed literal.
	KindLiteral
	// KindDefaultGraph marks the default graph in the graph position of a quad.
	KindDefaultGraph
)

// String returns the lowercase name of the kind.
func (k TermKind) String() string {
	switch k {
	case KindNamed:
		return "iri"
	case KindBlank:
		return "bnode"
	case KindLiteral:
		return "literal"
	case KindDefaultGraph:
		return "default"
	default:
		return fmt.Sprintf("TermKind(%d)", uint8(k))
	}
}

// Term is a sealed interface over RDF values.
// Only NamedTerm, BlankTerm, Literal and DefaultGraph implement it.
//
// All implementations are comparable value types, so two Terms are equal
// exactly when == says so and Terms can be used as map keys.
type Term interface {
	Kind() TermKind
	String() string
	term() // Sealed - only types in this package implement it
}

// NamedTerm is an IRI.
type NamedTerm struct {
	IRI string
}

func (NamedTerm) term() {}

// Kind returns KindNamed.
func (NamedTerm) Kind() TermKind { return KindNamed }

// String returns the IRI wrapped in angle brackets.
func (n NamedTerm) String() string { return "<" + n.IRI + ">" }

// BlankTerm is a blank node identified by a store-assigned integer.
type BlankTerm struct {
	ID int64
}

func (BlankTerm) term() {}

// Kind returns KindBlank.
func (BlankTerm) Kind() TermKind { return KindBlank }

// String returns the blank node label, e.g. "_:12".
func (b BlankTerm) String() string { return "_:" + strconv.FormatInt(b.ID, 10) }

// Literal is a typed literal. A literal without an explicit datatype carries
// XSDString.
type Literal struct {
	Value    string
	Datatype NamedTerm
}

func (Literal) term() {}

// Kind returns KindLiteral.
func (Literal) Kind() TermKind { return KindLiteral }

// String returns the quoted lexical form, followed by ^^<datatype> unless the
// datatype is xsd:string.
func (l Literal) String() string {
	q := strconv.Quote(l.Value)
	if l.Datatype == XSDString || l.Datatype.IRI == "" {
		return q
	}
	return q + "^^" + l.Datatype.String()
}

// DefaultGraph marks the default graph. It is only valid in the graph
// position of a Quad.
type DefaultGraph struct{}

func (DefaultGraph) term() {}

// Kind returns KindDefaultGraph.
func (DefaultGraph) Kind() TermKind { return KindDefaultGraph }

// String returns "DEFAULT".
func (DefaultGraph) String() string { return "DEFAULT" }

// Common vocabulary.
var (
	XSDString  = NamedTerm{IRI: "http://www.w3.org/2001/XMLSchema#string"}
	XSDInteger = NamedTerm{IRI: "http://www.w3.org/2001/XMLSchema#integer"}
	XSDDecimal = NamedTerm{IRI: "http://www.w3.org/2001/XMLSchema#decimal"}
	XSDDouble  = NamedTerm{IRI: "http://www.w3.org/2001/XMLSchema#double"}
	XSDBoolean = NamedTerm{IRI: "http://www.w3.org/2001/XMLSchema#boolean"}
	RDFType    = NamedTerm{IRI: "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"}
)

// IRI creates a NamedTerm.
func IRI(iri string) NamedTerm {
	return NamedTerm{IRI: iri}
}

// Blank creates a BlankTerm.
func Blank(id int64) BlankTerm {
	return BlankTerm{ID: id}
}

// NewLiteral creates an xsd:string literal.
func NewLiteral(value string) Literal {
	return Literal{Value: value, Datatype: XSDString}
}

// TypedLiteral creates a literal with an explicit datatype.
func TypedLiteral(value string, datatype NamedTerm) Literal {
	return Literal{Value: value, Datatype: datatype}
}

// IntLiteral creates an xsd:integer literal.
func IntLiteral(n int64) Literal {
	return Literal{Value: strconv.FormatInt(n, 10), Datatype: XSDInteger}
}

// BoolLiteral creates an xsd:boolean literal.
func BoolLiteral(b bool) Literal {
	return Literal{Value: strconv.FormatBool(b), Datatype: XSDBoolean}
}

// ParseTerm reads the compact term notation produced by Term.String:
//
//	<http://example.org/a>      IRI
//	ex:alice                    bare IRI (taken verbatim, no prefix expansion)
//	_:42                        blank node
//	"text"                      xsd:string literal
//	"5"^^<http://...#integer>   typed literal
//	DEFAULT                     the default graph marker
//
// Variables ("?x") are not terms and are rejected.
func ParseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty term")
	case s == "DEFAULT":
		return DefaultGraph{}, nil
	case s[0] == '?' || s[0] == '$':
		return nil, fmt.Errorf("term %q: variables are not terms", s)
	case s[0] == '<':
		if !strings.HasSuffix(s, ">") || len(s) < 3 {
			return nil, fmt.Errorf("term %q: unterminated IRI", s)
		}
		return NamedTerm{IRI: s[1 : len(s)-1]}, nil
	case strings.HasPrefix(s, "_:"):
		id, err := strconv.ParseInt(s[2:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("term %q: blank node label must be an integer", s)
		}
		return BlankTerm{ID: id}, nil
	case s[0] == '"':
		return parseLiteral(s)
	default:
		if strings.ContainsAny(s, " \t\n\"<>") {
			return nil, fmt.Errorf("term %q: invalid bare IRI", s)
		}
		return NamedTerm{IRI: s}, nil
	}
}

// MustParseTerm is like ParseTerm but panics on error.
// Use only in tests or with constant input.
func MustParseTerm(s string) Term {
	t, err := ParseTerm(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseLiteral(s string) (Term, error) {
	end := closingQuote(s)
	if end < 0 {
		return nil, fmt.Errorf("term %q: unterminated literal", s)
	}
	value, err := strconv.Unquote(s[:end+1])
	if err != nil {
		return nil, fmt.Errorf("term %q: %w", s, err)
	}
	rest := s[end+1:]
	if rest == "" {
		return NewLiteral(value), nil
	}
	if !strings.HasPrefix(rest, "^^") {
		return nil, fmt.Errorf("term %q: unexpected suffix %q", s, rest)
	}
	dt, err := ParseTerm(rest[2:])
	if err != nil {
		return nil, fmt.Errorf("term %q: datatype: %w", s, err)
	}
	named, ok := dt.(NamedTerm)
	if !ok {
		return nil, fmt.Errorf("term %q: datatype must be an IRI", s)
	}
	return Literal{Value: value, Datatype: named}, nil
}

// closingQuote returns the index of the quote ending the literal that starts
// at s[0], honoring backslash escapes, or -1.
func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
