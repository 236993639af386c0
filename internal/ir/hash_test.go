package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuadIDDeterminism(t *testing.T) {
	q := NewQuad(IRI("ex:alice"), RDFType, IRI("ex:Person"))

	id1 := QuadID(q)
	id2 := QuadID(q)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestQuadIDNilGraphEqualsDefault(t *testing.T) {
	a := Quad{Subject: IRI("s"), Predicate: IRI("p"), Object: IRI("o")}
	b := NewQuad(IRI("s"), IRI("p"), IRI("o"))
	assert.Equal(t, QuadID(a), QuadID(b))
}

func TestQuadIDChangesWithContent(t *testing.T) {
	base := NewQuad(IRI("s"), IRI("p"), IRI("o"))
	variants := []Quad{
		NewQuad(IRI("s2"), IRI("p"), IRI("o")),
		NewQuad(IRI("s"), IRI("p2"), IRI("o")),
		NewQuad(IRI("s"), IRI("p"), NewLiteral("o")),
		base.InGraph(IRI("g")),
	}
	for _, v := range variants {
		assert.NotEqual(t, QuadID(base), QuadID(v), v.String())
	}
}

func TestQuadIDPanicsOnNilTerm(t *testing.T) {
	assert.Panics(t, func() {
		QuadID(Quad{Predicate: IRI("p")})
	})
}

func TestMappingHashKeyOrderIrrelevant(t *testing.T) {
	a := NewMapping(B("x", IRI("1")), B("y", IRI("2")))
	b := NewMapping(B("y", IRI("2")), B("x", IRI("1")))
	assert.Equal(t, MustMappingHash(a), MustMappingHash(b))

	c := NewMapping(B("x", IRI("1")), B("y", IRI("3")))
	assert.NotEqual(t, MustMappingHash(a), MustMappingHash(c))
}

func TestDomainSeparationPreventsCrossTypeCollision(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainQuad, data), hashWithDomain(DomainMapping, data))
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	h := sha256.New()
	h.Write([]byte("d"))
	h.Write([]byte{0x00})
	h.Write([]byte("x"))
	expected := hex.EncodeToString(h.Sum(nil))

	assert.Equal(t, expected, hashWithDomain("d", []byte("x")))
}

func TestEmptyMappingHash(t *testing.T) {
	h, err := MappingHash(Mapping{})
	require.NoError(t, err)
	assert.Equal(t, hashWithDomain(DomainMapping, []byte("{}")), h)
}
