package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rowKinds = []rowKind{bitsetKind, pairKind}

func mkRow(kind rowKind, pairs ...int) row {
	r := kind.empty()
	for i := 0; i < len(pairs); i += 2 {
		r = r.with(pairs[i], int32(pairs[i+1]))
	}
	return r
}

func TestChooseRowKind(t *testing.T) {
	tests := []struct {
		n, threshold int
		want         rowKind
	}{
		{0, DefaultBitsetThreshold, bitsetKind},
		{31, DefaultBitsetThreshold, bitsetKind},
		{32, DefaultBitsetThreshold, pairKind},
		{5, 0, pairKind},
		{33, 100, pairKind},
		{32, 100, bitsetKind},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chooseRowKind(tt.n, tt.threshold), "n=%d threshold=%d", tt.n, tt.threshold)
	}
}

func TestRow_GetWith(t *testing.T) {
	for _, kind := range rowKinds {
		t.Run(kind.String(), func(t *testing.T) {
			r := mkRow(kind, 3, 30, 0, 10, 7, 70)
			assert.Equal(t, 3, r.len())

			for b, want := range map[int]int32{0: 10, 3: 30, 7: 70} {
				got, ok := r.get(b)
				require.True(t, ok, "binding %d", b)
				assert.Equal(t, want, got)
			}
			_, ok := r.get(1)
			assert.False(t, ok)

			// with on a bound binding keeps the first term
			same := r.with(3, 99)
			got, _ := same.get(3)
			assert.Equal(t, int32(30), got)

			var order []int
			r.each(func(b int, _ int32) { order = append(order, b) })
			assert.Equal(t, []int{0, 3, 7}, order)
		})
	}
}

func TestRow_Compatible(t *testing.T) {
	for _, kind := range rowKinds {
		t.Run(kind.String(), func(t *testing.T) {
			a := mkRow(kind, 0, 1, 1, 2)
			assert.True(t, a.compatible(mkRow(kind, 1, 2, 2, 5)))
			assert.True(t, a.compatible(mkRow(kind, 4, 4)))
			assert.True(t, a.compatible(kind.empty()))
			assert.False(t, a.compatible(mkRow(kind, 1, 3)))
		})
	}
}

func TestRow_MergeLaws(t *testing.T) {
	for _, kind := range rowKinds {
		t.Run(kind.String(), func(t *testing.T) {
			a := mkRow(kind, 0, 1, 2, 3)
			b := mkRow(kind, 2, 3, 5, 6)
			c := mkRow(kind, 9, 1)
			e := kind.empty()

			assert.Equal(t, a.merge(b).key(), b.merge(a).key(), "commutative")
			assert.Equal(t, a.merge(b).merge(c).key(), a.merge(b.merge(c)).key(), "associative")
			assert.Equal(t, a.key(), a.merge(e).key(), "identity")
			assert.Equal(t, a.key(), a.merge(a).key(), "idempotent")

			m := a.merge(b)
			assert.Equal(t, 3, m.len())
			got, _ := m.get(5)
			assert.Equal(t, int32(6), got)
		})
	}
}

func TestRow_KeyIdentity(t *testing.T) {
	for _, kind := range rowKinds {
		t.Run(kind.String(), func(t *testing.T) {
			// insertion order does not matter
			assert.Equal(t, mkRow(kind, 0, 1, 4, 2).key(), mkRow(kind, 4, 2, 0, 1).key())
			assert.NotEqual(t, mkRow(kind, 0, 1).key(), mkRow(kind, 0, 2).key())
			assert.NotEqual(t, mkRow(kind, 0, 1).key(), mkRow(kind, 1, 1).key())
			assert.NotEqual(t, kind.empty().key(), mkRow(kind, 0, 0).key())
		})
	}
}

func TestProjectRow(t *testing.T) {
	for _, kind := range rowKinds {
		r := mkRow(kind, 0, 1, 1, 2, 2, 3)
		p := projectRow(kind, r, []int{2, 0, 5})
		assert.Equal(t, mkRow(kind, 0, 1, 2, 3).key(), p.key(), kind.String())
	}
}

func TestBitsetRow_HighestBinding(t *testing.T) {
	r := mkRow(bitsetKind, 31, 7, 0, 1)
	got, ok := r.get(31)
	require.True(t, ok)
	assert.Equal(t, int32(7), got)
	assert.True(t, r.compatible(mkRow(bitsetKind, 31, 7)))
	assert.False(t, r.compatible(mkRow(bitsetKind, 31, 8)))
}
