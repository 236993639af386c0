// Package harness runs conformance scenarios against incremental queries.
//
// A scenario stores setup quads, subscribes its queries, then applies steps
// of additions and removals through a fresh in-memory store. After every
// step the changes each query reported are compared with the step's expect
// clauses and, optionally, every query is compared with a from-scratch
// reference evaluation.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: friends_of_friends
//	description: "Two-hop knows paths appear and disappear"
//	queries:
//	  - queries/social.cue
//	setup:
//	  - ["<http://example.org/a>", "<http://example.org/knows>", "<http://example.org/b>"]
//	steps:
//	  - add:
//	      - ["<http://example.org/b>", "<http://example.org/knows>", "<http://example.org/c>"]
//	    expect:
//	      fof:
//	        new:
//	          - {x: "<http://example.org/a>", z: "<http://example.org/c>"}
//	check_reference: true
//	assertions:
//	  - type: count
//	    query: fof
//	    count: 1
//
// Terms use the notation of ir.ParseTerm. A quad with a fourth term is
// stored in that named graph.
//
// # Assertion Types
//
//   - results: the final results equal the given rows
//   - contains: a row occurs in the final results
//   - absent: a row does not occur in the final results
//   - count: the number of final results
//   - matches_reference: the final results equal the reference evaluation
//
// # Reference Evaluation
//
// Queries that are plain basic graph patterns are checked against a single
// SQL statement over a separate store (SQLEvaluator). Every other shape is
// checked by loading the live quads into a fresh query (BulkEvaluator).
//
// # Deterministic Testing
//
// Query ids come from testutil.SequentialIDGenerator and sequence numbers
// from the store, so repeated runs produce identical traces for golden
// comparison (RunWithGolden).
package harness
