package querysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sparqlflow/internal/ir"
	"github.com/roach88/sparqlflow/internal/queryir"
)

var (
	T = queryir.T
	V = queryir.V
	E = queryir.E
)

func ex(local string) ir.NamedTerm {
	return ir.IRI("http://example.org/" + local)
}

func bgp(triples ...queryir.TriplePattern) *queryir.Query {
	return &queryir.Query{Body: queryir.GraphPattern{Triples: triples}}
}

func TestCompile_SingleTriple(t *testing.T) {
	stmt, err := NewSQLCompiler().Compile(bgp(T(V("x"), E(ir.RDFType), E(ex("Person")))))
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, stmt.Vars)
	assert.Equal(t, []any{ir.RDFType.String(), "<http://example.org/Person>"}, stmt.Params)
	assert.Equal(t,
		"SELECT t0.text AS v0, SUM(q0.count) AS weight FROM quads q0, terms t0 "+
			"WHERE q0.p = (SELECT id FROM terms WHERE text = ?) AND q0.o = (SELECT id FROM terms WHERE text = ?) AND t0.id = q0.s "+
			"GROUP BY v0 ORDER BY v0 COLLATE BINARY ASC",
		stmt.SQL)
}

func TestCompile_OrderByMandatory(t *testing.T) {
	stmt, err := NewSQLCompiler().Compile(bgp(
		T(V("x"), E(ex("knows")), V("y")),
		T(V("y"), E(ex("name")), V("n")),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y", "n"}, stmt.Vars)
	assert.True(t, strings.HasSuffix(stmt.SQL, "ORDER BY v0 COLLATE BINARY ASC, v1 COLLATE BINARY ASC, v2 COLLATE BINARY ASC"))
}

func TestCompile_SharedVariablesBecomeJoins(t *testing.T) {
	stmt, err := NewSQLCompiler().Compile(bgp(
		T(V("x"), E(ex("knows")), V("y")),
		T(V("y"), E(ex("knows")), V("x")),
	))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "q1.s = q0.o")
	assert.Contains(t, stmt.SQL, "q1.o = q0.s")
	assert.Contains(t, stmt.SQL, "SUM(q0.count * q1.count)")
}

func TestCompile_RepeatedVariableInOneTriple(t *testing.T) {
	stmt, err := NewSQLCompiler().Compile(bgp(T(V("x"), E(ex("knows")), V("x"))))
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "q0.o = q0.s")
	assert.Equal(t, []string{"x"}, stmt.Vars)
}

func TestCompile_NoStringInterpolation(t *testing.T) {
	evil := ir.NewLiteral("'; DROP TABLE quads; --")
	stmt, err := NewSQLCompiler().Compile(bgp(T(V("x"), E(ex("name")), E(evil))))
	require.NoError(t, err)

	assert.NotContains(t, stmt.SQL, "DROP")
	assert.Contains(t, stmt.Params, evil.String())
}

func TestCompile_PredicateSets(t *testing.T) {
	alts, err := NewSQLCompiler().Compile(bgp(T(V("x"), queryir.Alts{IRIs: []ir.NamedTerm{ex("p"), ex("q")}}, V("y"))))
	require.NoError(t, err)
	assert.Contains(t, alts.SQL, "q0.p IN (SELECT id FROM terms WHERE text IN (?, ?))")
	assert.Equal(t, []any{"<http://example.org/p>", "<http://example.org/q>"}, alts.Params)

	neg, err := NewSQLCompiler().Compile(bgp(T(V("x"), queryir.Negated{IRIs: []ir.NamedTerm{ex("p")}}, V("y"))))
	require.NoError(t, err)
	assert.Contains(t, neg.SQL, "q0.p NOT IN (SELECT id FROM terms WHERE text IN (?))")
}

func TestCompile_VariablePredicate(t *testing.T) {
	stmt, err := NewSQLCompiler().Compile(bgp(T(V("s"), V("p"), V("o"))))
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "p", "o"}, stmt.Vars)
	assert.Contains(t, stmt.SQL, "t1.id = q0.p")
	assert.Empty(t, stmt.Params)
}

func TestCompile_Projection(t *testing.T) {
	q := bgp(T(V("x"), E(ex("knows")), V("y")))
	q.Projection = []queryir.Projection{{Name: "x"}}

	stmt, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, stmt.Vars)
	assert.Contains(t, stmt.SQL, "SUM(q0.count) AS weight")
	assert.Contains(t, stmt.SQL, "GROUP BY v0")

	q.Distinct = true
	stmt, err = NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "MIN(1) AS weight")

	q.Projection = []queryir.Projection{{Name: "ghost"}}
	_, err = NewSQLCompiler().Compile(q)
	assert.Error(t, err)
}

func TestCompile_NoVariables(t *testing.T) {
	stmt, err := NewSQLCompiler().Compile(bgp(T(E(ex("a")), E(ex("knows")), E(ex("b")))))
	require.NoError(t, err)
	assert.Empty(t, stmt.Vars)
	assert.NotContains(t, stmt.SQL, "GROUP BY")
	assert.Contains(t, stmt.SQL, "SUM(q0.count) AS weight")
}

func TestCompile_EmptyBody(t *testing.T) {
	stmt, err := NewSQLCompiler().Compile(&queryir.Query{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 AS weight", stmt.SQL)
}

func TestCompile_Scope(t *testing.T) {
	tests := []struct {
		name   string
		scope  queryir.Scope
		graphs []ir.Term
		sql    string
		params []any
	}{
		{"union", queryir.ScopeUnion, nil, "", nil},
		{"default", queryir.ScopeDefault, nil, "q0.g = (SELECT id FROM terms WHERE text = ?)", []any{"DEFAULT"}},
		{"named", queryir.ScopeNamed, []ir.Term{ex("g1"), ir.DefaultGraph{}}, "q0.g IN (SELECT id FROM terms WHERE text IN (?, ?))", []any{"<http://example.org/g1>", "DEFAULT"}},
		{"named without graphs", queryir.ScopeNamed, nil, "1 = 0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := bgp(T(V("x"), V("p"), V("y")))
			q.Scope = tt.scope
			q.Graphs = tt.graphs

			stmt, err := NewSQLCompiler().Compile(q)
			require.NoError(t, err)
			if tt.sql == "" {
				assert.NotContains(t, stmt.SQL, ".g")
			} else {
				assert.Contains(t, stmt.SQL, tt.sql)
			}
			assert.Equal(t, tt.params, stmt.Params)
		})
	}
}

func TestCompile_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		q    *queryir.Query
	}{
		{"path", bgp(T(V("x"), queryir.OneOrMore{Step: E(ex("knows"))}, V("y")))},
		{"filter", &queryir.Query{Body: queryir.GraphPattern{
			Triples: []queryir.TriplePattern{T(V("x"), E(ex("age")), V("a"))},
			Filters: []queryir.Filter{queryir.ExprFilter{Expr: queryir.Bound{Name: "a"}}},
		}}},
		{"optional", &queryir.Query{Body: queryir.GraphPattern{
			Optionals: []queryir.GraphPattern{{Triples: []queryir.TriplePattern{T(V("x"), E(ex("p")), V("y"))}}},
		}}},
		{"computed projection", &queryir.Query{
			Projection: []queryir.Projection{{Name: "z", Expr: queryir.Const(ir.IntLiteral(1))}},
			Body:       queryir.GraphPattern{Triples: []queryir.TriplePattern{T(V("x"), E(ex("p")), V("y"))}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSQLCompiler().Compile(tt.q)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestCompile_NilQuery(t *testing.T) {
	_, err := NewSQLCompiler().Compile(nil)
	assert.Error(t, err)
}
