package engine

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

func ex(local string) ir.NamedTerm {
	return ir.IRI("http://example.org/" + local)
}

func quad(s, p, o string) ir.Quad {
	return ir.NewQuad(ex(s), ex(p), ex(o))
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func prepare(t *testing.T, q *queryir.Query, opts ...Option) *Query {
	t.Helper()
	base := []Option{WithLogger(quiet()), WithIDGenerator(NewFixedGenerator("q1"))}
	query, err := Prepare(q, append(base, opts...)...)
	require.NoError(t, err)
	return query
}

func add(t *testing.T, q *Query, quads ...ir.Quad) []ResultChange {
	t.Helper()
	var out []ResultChange
	for _, qd := range quads {
		cs, err := q.Process(ir.Added(qd))
		require.NoError(t, err)
		out = append(out, cs...)
	}
	return out
}

func remove(t *testing.T, q *Query, quads ...ir.Quad) []ResultChange {
	t.Helper()
	var out []ResultChange
	for _, qd := range quads {
		cs, err := q.Process(ir.Removed(qd))
		require.NoError(t, err)
		out = append(out, cs...)
	}
	return out
}

// rendered returns the snapshot as sorted mapping strings.
func rendered(q *Query) []string {
	var out []string
	for _, m := range q.Results() {
		out = append(out, m.String())
	}
	slices.Sort(out)
	return out
}

func changeStrings(cs []ResultChange) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

// bind builds a mapping from alternating name/term arguments.
func bind(pairs ...any) ir.Mapping {
	var bs []ir.Binding
	for i := 0; i < len(pairs); i += 2 {
		bs = append(bs, ir.B(pairs[i].(string), pairs[i+1].(ir.Term)))
	}
	return ir.NewMapping(bs...)
}

func bgp(triples ...queryir.TriplePattern) queryir.GraphPattern {
	return queryir.GraphPattern{Triples: triples}
}

func selectAll(body queryir.GraphPattern) *queryir.Query {
	return &queryir.Query{Body: body}
}

func selectVars(body queryir.GraphPattern, names ...string) *queryir.Query {
	q := &queryir.Query{Body: body}
	for _, n := range names {
		q.Projection = append(q.Projection, queryir.Projection{Name: n})
	}
	return q
}

// memSource is an in-memory Source with multiplicity.
type memSource struct {
	mu        sync.Mutex
	counts    map[ir.Quad]int
	listeners []Listener
}

func newMemSource() *memSource {
	return &memSource{counts: make(map[ir.Quad]int)}
}

func (s *memSource) Add(q ir.Quad) {
	q = q.Normalize()
	s.mu.Lock()
	s.counts[q]++
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, l := range ls {
		l.OnQuadAdded(q)
	}
}

func (s *memSource) Remove(q ir.Quad) {
	q = q.Normalize()
	s.mu.Lock()
	s.counts[q]--
	if s.counts[q] == 0 {
		delete(s.counts, q)
	}
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, l := range ls {
		l.OnQuadRemoved(q)
	}
}

func (s *memSource) Each(ctx context.Context, fn func(q ir.Quad) error) error {
	s.mu.Lock()
	quads := make([]ir.Quad, 0, len(s.counts))
	for q := range s.counts {
		quads = append(quads, q)
	}
	counts := make(map[ir.Quad]int, len(s.counts))
	for q, n := range s.counts {
		counts[q] = n
	}
	s.mu.Unlock()
	slices.SortFunc(quads, func(a, b ir.Quad) int { return strings.Compare(a.String(), b.String()) })
	for _, q := range quads {
		for range counts[q] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(q); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *memSource) Register(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *memSource) Unregister(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.listeners, l); i >= 0 {
		s.listeners = slices.Delete(s.listeners, i, i+1)
	}
}

// snapshotQuads returns every stored occurrence.
func (s *memSource) snapshotQuads() []ir.Quad {
	var out []ir.Quad
	_ = s.Each(context.Background(), func(q ir.Quad) error {
		out = append(out, q)
		return nil
	})
	return out
}
