package engine

import (
	"encoding/binary"
	"math/bits"
	"slices"
)

// DefaultBitsetThreshold is the number of distinct bindings below which a
// query uses the bitset row representation.
const DefaultBitsetThreshold = 32

// maxBitsetBindings is the capacity of a bitsetRow mask.
const maxBitsetBindings = 32

// row is a partial mapping over interned binding and term ids.
//
// Two implementations share this contract: bitsetRow and pairRow. A query
// picks one kind in Prepare and every row it builds has that kind, so
// implementations may assume the other operand has the same concrete type.
//
// Rows are immutable values.
type row interface {
	// get returns the term bound to b.
	get(b int) (int32, bool)
	// with returns a row that also binds b to t. If b is already bound the
	// receiver is returned unchanged.
	with(b int, t int32) row
	// compatible reports whether the rows agree on every shared binding.
	compatible(o row) bool
	// merge returns the union of two compatible rows.
	merge(o row) row
	// each visits the bindings in ascending binding id order.
	each(fn func(b int, t int32))
	// len returns the number of bound bindings.
	len() int
	// key returns a canonical identity: equal rows have equal keys.
	key() string
}

// rowKind selects a row representation.
type rowKind uint8

const (
	bitsetKind rowKind = iota + 1
	pairKind
)

// chooseRowKind picks the representation for a query with n distinct
// bindings.
func chooseRowKind(n, threshold int) rowKind {
	if n < threshold && n <= maxBitsetBindings {
		return bitsetKind
	}
	return pairKind
}

// empty returns the empty row of this kind.
func (k rowKind) empty() row {
	if k == bitsetKind {
		return bitsetRow{}
	}
	return pairRow{}
}

func (k rowKind) String() string {
	if k == bitsetKind {
		return "bitset"
	}
	return "pairs"
}

// projectRow keeps only the listed bindings of r.
func projectRow(kind rowKind, r row, keep []int) row {
	out := kind.empty()
	for _, b := range keep {
		if t, ok := r.get(b); ok {
			out = out.with(b, t)
		}
	}
	return out
}

// bitsetRow stores presence in a 32-bit mask and the terms densely in
// ascending binding order.
type bitsetRow struct {
	mask uint32
	vals []int32
}

func (r bitsetRow) rank(bit uint32) int {
	return bits.OnesCount32(r.mask & (bit - 1))
}

func (r bitsetRow) get(b int) (int32, bool) {
	bit := uint32(1) << uint(b)
	if r.mask&bit == 0 {
		return 0, false
	}
	return r.vals[r.rank(bit)], true
}

func (r bitsetRow) with(b int, t int32) row {
	bit := uint32(1) << uint(b)
	if r.mask&bit != 0 {
		return r
	}
	i := r.rank(bit)
	vals := make([]int32, 0, len(r.vals)+1)
	vals = append(vals, r.vals[:i]...)
	vals = append(vals, t)
	vals = append(vals, r.vals[i:]...)
	return bitsetRow{mask: r.mask | bit, vals: vals}
}

func (r bitsetRow) compatible(o row) bool {
	other := o.(bitsetRow)
	common := r.mask & other.mask
	for common != 0 {
		bit := common & -common
		if r.vals[r.rank(bit)] != other.vals[other.rank(bit)] {
			return false
		}
		common &^= bit
	}
	return true
}

func (r bitsetRow) merge(o row) row {
	other := o.(bitsetRow)
	if other.mask&^r.mask == 0 {
		return r
	}
	if r.mask&^other.mask == 0 {
		return other
	}
	mask := r.mask | other.mask
	vals := make([]int32, 0, bits.OnesCount32(mask))
	i, j := 0, 0
	for m := mask; m != 0; m &= m - 1 {
		bit := m & -m
		inR, inO := r.mask&bit != 0, other.mask&bit != 0
		switch {
		case inR:
			vals = append(vals, r.vals[i])
		default:
			vals = append(vals, other.vals[j])
		}
		if inR {
			i++
		}
		if inO {
			j++
		}
	}
	return bitsetRow{mask: mask, vals: vals}
}

func (r bitsetRow) each(fn func(b int, t int32)) {
	i := 0
	for m := r.mask; m != 0; m &= m - 1 {
		fn(bits.TrailingZeros32(m), r.vals[i])
		i++
	}
}

func (r bitsetRow) len() int {
	return len(r.vals)
}

func (r bitsetRow) key() string {
	buf := make([]byte, 4+4*len(r.vals))
	binary.LittleEndian.PutUint32(buf, r.mask)
	for i, v := range r.vals {
		binary.LittleEndian.PutUint32(buf[4+4*i:], uint32(v))
	}
	return string(buf)
}

// termPair is one binding of a pairRow.
type termPair struct {
	b int32
	t int32
}

// pairRow stores (binding, term) pairs sorted by binding id.
type pairRow struct {
	pairs []termPair
}

func (r pairRow) find(b int) (int, bool) {
	return slices.BinarySearchFunc(r.pairs, int32(b), func(p termPair, target int32) int {
		return int(p.b - target)
	})
}

func (r pairRow) get(b int) (int32, bool) {
	i, ok := r.find(b)
	if !ok {
		return 0, false
	}
	return r.pairs[i].t, true
}

func (r pairRow) with(b int, t int32) row {
	i, ok := r.find(b)
	if ok {
		return r
	}
	pairs := make([]termPair, 0, len(r.pairs)+1)
	pairs = append(pairs, r.pairs[:i]...)
	pairs = append(pairs, termPair{b: int32(b), t: t})
	pairs = append(pairs, r.pairs[i:]...)
	return pairRow{pairs: pairs}
}

func (r pairRow) compatible(o row) bool {
	other := o.(pairRow)
	i, j := 0, 0
	for i < len(r.pairs) && j < len(other.pairs) {
		a, b := r.pairs[i], other.pairs[j]
		switch {
		case a.b < b.b:
			i++
		case a.b > b.b:
			j++
		default:
			if a.t != b.t {
				return false
			}
			i++
			j++
		}
	}
	return true
}

func (r pairRow) merge(o row) row {
	other := o.(pairRow)
	pairs := make([]termPair, 0, len(r.pairs)+len(other.pairs))
	i, j := 0, 0
	for i < len(r.pairs) && j < len(other.pairs) {
		a, b := r.pairs[i], other.pairs[j]
		switch {
		case a.b < b.b:
			pairs = append(pairs, a)
			i++
		case a.b > b.b:
			pairs = append(pairs, b)
			j++
		default:
			pairs = append(pairs, a)
			i++
			j++
		}
	}
	pairs = append(pairs, r.pairs[i:]...)
	pairs = append(pairs, other.pairs[j:]...)
	return pairRow{pairs: pairs}
}

func (r pairRow) each(fn func(b int, t int32)) {
	for _, p := range r.pairs {
		fn(int(p.b), p.t)
	}
}

func (r pairRow) len() int {
	return len(r.pairs)
}

func (r pairRow) key() string {
	buf := make([]byte, 8*len(r.pairs))
	for i, p := range r.pairs {
		binary.LittleEndian.PutUint32(buf[8*i:], uint32(p.b))
		binary.LittleEndian.PutUint32(buf[8*i+4:], uint32(p.t))
	}
	return string(buf)
}
