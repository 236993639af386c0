package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTerm(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Term
	}{
		{"bracketed iri", "<http://ex.org/a>", IRI("http://ex.org/a")},
		{"bare iri", "ex:alice", IRI("ex:alice")},
		{"blank", "_:42", Blank(42)},
		{"plain literal", `"hello"`, NewLiteral("hello")},
		{"escaped literal", `"say \"hi\""`, NewLiteral(`say "hi"`)},
		{"typed literal", `"5"^^<http://www.w3.org/2001/XMLSchema#integer>`, IntLiteral(5)},
		{"typed literal bare datatype", `"x"^^ex:dt`, TypedLiteral("x", IRI("ex:dt"))},
		{"default graph", "DEFAULT", DefaultGraph{}},
		{"surrounding space", "  <a>  ", IRI("a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTerm(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseTermErrors(t *testing.T) {
	inputs := []string{
		"",
		"?x",
		"$x",
		"<unterminated",
		"<>",
		"_:abc",
		`"open`,
		`"x"@en`,
		`"x"^^"y"`,
		"has space",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ParseTerm(in)
			assert.Error(t, err)
		})
	}
}

func TestTermStringRoundTrip(t *testing.T) {
	terms := []Term{
		IRI("http://ex.org/a"),
		Blank(3),
		NewLiteral("multi\nline \"quoted\""),
		IntLiteral(-7),
		BoolLiteral(true),
		DefaultGraph{},
	}
	for _, term := range terms {
		t.Run(term.String(), func(t *testing.T) {
			back, err := ParseTerm(term.String())
			require.NoError(t, err)
			assert.Equal(t, term, back)
		})
	}
}

func TestTermsAreComparable(t *testing.T) {
	seen := map[Term]int{}
	seen[IRI("a")]++
	seen[IRI("a")]++
	seen[NewLiteral("a")]++
	seen[Blank(1)]++

	assert.Equal(t, 2, seen[IRI("a")])
	assert.Equal(t, 1, seen[NewLiteral("a")])
	assert.NotEqual(t, Term(IRI("a")), Term(NewLiteral("a")))
}

func TestTermKind(t *testing.T) {
	assert.Equal(t, KindNamed, IRI("a").Kind())
	assert.Equal(t, KindBlank, Blank(1).Kind())
	assert.Equal(t, KindLiteral, NewLiteral("x").Kind())
	assert.Equal(t, KindDefaultGraph, DefaultGraph{}.Kind())
	assert.Equal(t, "literal", KindLiteral.String())
}

func TestQuadValidate(t *testing.T) {
	tests := []struct {
		name    string
		quad    Quad
		wantErr bool
	}{
		{"valid", NewQuad(IRI("s"), IRI("p"), NewLiteral("o")), false},
		{"valid named graph", NewQuad(Blank(1), IRI("p"), IRI("o")).InGraph(IRI("g")), false},
		{"missing subject", Quad{Predicate: IRI("p"), Object: IRI("o")}, true},
		{"empty predicate", NewQuad(IRI("s"), IRI(""), IRI("o")), true},
		{"literal subject", NewQuad(NewLiteral("s"), IRI("p"), IRI("o")), true},
		{"default as object", NewQuad(IRI("s"), IRI("p"), DefaultGraph{}), true},
		{"literal graph", NewQuad(IRI("s"), IRI("p"), IRI("o")).InGraph(NewLiteral("g")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.quad.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuadNormalize(t *testing.T) {
	q := Quad{Subject: IRI("s"), Predicate: IRI("p"), Object: IRI("o")}
	assert.True(t, q.InDefaultGraph())
	assert.Equal(t, NewQuad(IRI("s"), IRI("p"), IRI("o")), q.Normalize())
	assert.Equal(t, "<s> <p> <o> .", q.String())
	assert.Equal(t, "<s> <p> <o> <g> .", q.InGraph(IRI("g")).String())
}
