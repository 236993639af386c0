// Package queryir provides the structured query tree consumed by the
// incremental engine.
//
// The tree is the abstraction boundary between query front ends (the CUE
// compiler in internal/compiler, tests building trees by hand) and the
// engine. Textual SPARQL is never parsed here; callers hand over a
// structurally normalized SELECT tree and Validate checks it once, ahead of
// time. The engine assumes every tree it receives passed Validate.
//
// SPARQL MAPPING:
//
//	queryir                         SPARQL
//	-------                         ------
//	TriplePattern{Var,Exact,Var}    ?s <p> ?o
//	Alts{p, q}                      ?s (p|q) ?o
//	Negated{p}                      ?s !(p) ?o
//	ZeroOrMore{Step: Exact{p}}      ?s p* ?o
//	OneOrMore{Step: Var{"p"}}       ?s ?p+ ?o   (one reachability index per ?p value)
//	GraphPattern.Filters            FILTER(expr), FILTER EXISTS, FILTER NOT EXISTS
//	GraphPattern.Optionals          OPTIONAL { ... }
//	GraphPattern.Unions             { ... } UNION { ... }
//	GraphPattern.Segments           { SELECT ... WHERE { ... } }
//	Query.Distinct / OrderBy        SELECT DISTINCT ... ORDER BY
//	Query.Scope / Graphs            FROM / FROM NAMED dataset selection
//
// SEALED INTERFACES:
//
// Position, Predicate, Filter and Expr are sealed interfaces using the marker
// method pattern. Only types in this package implement them, so the engine's
// type switches over them are exhaustive.
//
// Aggregation (GROUP BY, HAVING) is representable in the tree so that front
// ends can report it precisely, but Validate rejects it.
package queryir
