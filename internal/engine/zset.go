package engine

import "fmt"

// change is one weighted row: a positive n adds n occurrences, a negative n
// retracts them.
type change struct {
	row row
	n   int
}

// consolidate sums changes with equal rows and drops zero weights.
// The first-appearance order of rows is kept.
func consolidate(cs []change) []change {
	if len(cs) < 2 {
		if len(cs) == 1 && cs[0].n == 0 {
			return nil
		}
		return cs
	}
	pos := make(map[string]int, len(cs))
	out := make([]change, 0, len(cs))
	for _, c := range cs {
		k := c.row.key()
		if i, ok := pos[k]; ok {
			out[i].n += c.n
			continue
		}
		pos[k] = len(out)
		out = append(out, c)
	}
	n := 0
	for _, c := range out {
		if c.n != 0 {
			out[n] = c
			n++
		}
	}
	return out[:n]
}

// negate flips the sign of every change.
func negate(cs []change) []change {
	out := make([]change, len(cs))
	for i, c := range cs {
		out[i] = change{row: c.row, n: -c.n}
	}
	return out
}

type zentry struct {
	row row
	n   int
}

// zset is a weighted multiset of rows (row → count) with per-binding hash
// indexes for finding compatible rows.
//
// Every engine cache is a zset. Counts are kept strictly positive: an entry
// is removed when its count reaches zero, and a count that would go negative
// is an underflow (see mustAdd).
type zset struct {
	entries map[string]*zentry
	// index[b][t] holds the keys of entries binding b to t.
	index map[int]map[int32]map[string]struct{}
	// bound[b] counts entries binding b.
	bound map[int]int
	total int
}

func newZSet() *zset {
	return &zset{
		entries: make(map[string]*zentry),
		index:   make(map[int]map[int32]map[string]struct{}),
		bound:   make(map[int]int),
	}
}

// count returns the multiplicity of r.
func (z *zset) count(r row) int {
	if e, ok := z.entries[r.key()]; ok {
		return e.n
	}
	return 0
}

// distinct returns the number of distinct rows.
func (z *zset) distinct() int {
	return len(z.entries)
}

// size returns the total multiplicity.
func (z *zset) size() int {
	return z.total
}

// add adjusts the multiplicity of r by n and returns the new count.
// A count that would go negative is left untouched and reported as negative;
// callers decide whether that is fatal.
func (z *zset) add(r row, n int) int {
	if n == 0 {
		return z.count(r)
	}
	k := r.key()
	e, ok := z.entries[k]
	if !ok {
		if n < 0 {
			return n
		}
		z.entries[k] = &zentry{row: r, n: n}
		z.indexRow(k, r)
		z.total += n
		return n
	}
	if e.n+n < 0 {
		return e.n + n
	}
	e.n += n
	z.total += n
	if e.n == 0 {
		delete(z.entries, k)
		z.unindexRow(k, r)
	}
	return e.n
}

// mustAdd is add for caches that may never underflow.
func (z *zset) mustAdd(r row, n int, where string) int {
	after := z.add(r, n)
	if after < 0 {
		panic(NewUnderflowError(where, fmt.Sprintf("row retracted %d time(s) more than it was added", -after)))
	}
	return after
}

// apply adds every change, panicking on underflow.
func (z *zset) apply(cs []change, where string) {
	for _, c := range cs {
		z.mustAdd(c.row, c.n, where)
	}
}

func (z *zset) indexRow(k string, r row) {
	r.each(func(b int, t int32) {
		byTerm, ok := z.index[b]
		if !ok {
			byTerm = make(map[int32]map[string]struct{})
			z.index[b] = byTerm
		}
		keys, ok := byTerm[t]
		if !ok {
			keys = make(map[string]struct{})
			byTerm[t] = keys
		}
		keys[k] = struct{}{}
		z.bound[b]++
	})
}

func (z *zset) unindexRow(k string, r row) {
	r.each(func(b int, t int32) {
		byTerm := z.index[b]
		keys := byTerm[t]
		delete(keys, k)
		if len(keys) == 0 {
			delete(byTerm, t)
		}
		z.bound[b]--
		if z.bound[b] == 0 {
			delete(z.bound, b)
			delete(z.index, b)
		}
	})
}

// each visits every entry. The zset must not be modified during the visit.
func (z *zset) each(fn func(r row, n int)) {
	for _, e := range z.entries {
		fn(e.row, e.n)
	}
}

// compatibleWith visits every entry compatible with probe.
//
// When some binding of probe is bound by every entry, only the index bucket
// for probe's term is scanned, choosing the smallest such bucket. Otherwise
// all entries are scanned.
func (z *zset) compatibleWith(probe row, fn func(r row, n int)) {
	var bucket map[string]struct{}
	indexed := false
	probe.each(func(b int, t int32) {
		if z.bound[b] != len(z.entries) || len(z.entries) == 0 {
			return
		}
		keys := z.index[b][t]
		if !indexed || len(keys) < len(bucket) {
			bucket = keys
			indexed = true
		}
	})
	if indexed {
		for k := range bucket {
			e := z.entries[k]
			if probe.compatible(e.row) {
				fn(e.row, e.n)
			}
		}
		return
	}
	for _, e := range z.entries {
		if probe.compatible(e.row) {
			fn(e.row, e.n)
		}
	}
}

// compatibleCount returns the summed multiplicity of entries compatible
// with probe.
func (z *zset) compatibleCount(probe row) int {
	total := 0
	z.compatibleWith(probe, func(_ row, n int) {
		total += n
	})
	return total
}

// changes returns the contents as a change list.
func (z *zset) changes() []change {
	out := make([]change, 0, len(z.entries))
	z.each(func(r row, n int) {
		out = append(out, change{row: r, n: n})
	})
	return out
}

// joinChanges joins weighted candidates against a zset, keeping compatible
// merges with multiplied weights.
func joinChanges(cands []change, z *zset) []change {
	var out []change
	for _, c := range cands {
		z.compatibleWith(c.row, func(r row, n int) {
			out = append(out, change{row: c.row.merge(r), n: c.n * n})
		})
	}
	return out
}
