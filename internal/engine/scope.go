package engine

import (
	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

// datasetScope selects the graphs a query sees:
//   - union: every graph (default)
//   - default: only the default graph
//   - named: only the graphs listed in the query
//
// Quads outside the scope are dropped before any rule sees them.
type datasetScope struct {
	mode   queryir.Scope
	graphs map[ir.Term]struct{}
}

func newDatasetScope(q *queryir.Query) datasetScope {
	s := datasetScope{mode: q.EffectiveScope()}
	if s.mode == queryir.ScopeNamed {
		s.graphs = make(map[ir.Term]struct{}, len(q.Graphs))
		for _, g := range q.Graphs {
			s.graphs[g] = struct{}{}
		}
	}
	return s
}

func (s datasetScope) accepts(q ir.Quad) bool {
	switch s.mode {
	case queryir.ScopeDefault:
		return q.InDefaultGraph()
	case queryir.ScopeNamed:
		_, ok := s.graphs[q.GraphTerm()]
		return ok
	default:
		return true
	}
}
