// Package engine evaluates SPARQL SELECT queries incrementally over a live
// quad store.
//
// ARCHITECTURE:
//
// A query tree is compiled once by Prepare into a tree of operators. Each
// operator keeps weighted rows (Z-sets): a data delta is pushed through the
// tree and every operator returns the weighted change to its output, never
// recomputing from scratch.
//
// Delta Processing Flow:
//  1. The store calls a Listener once per quad occurrence added or removed
//  2. Query.Process stamps the delta and drops quads outside the dataset
//  3. Rule networks turn the quad into binding changes per graph pattern
//  4. Joins, optionals, filters, unions and nested selects combine them
//  5. The projection shapes output mappings; Results counts occurrences
//  6. One ResultChange is returned per occurrence gained or lost
//
// Basic graph patterns are rule networks: each triple pattern is a rule
// with a cache, and the change caused by one quad is the sum, over the
// rules the quad matches, of that rule's new rows joined against the other
// caches. Patterns with p* or p+ keep an incremental reachability index
// (Connections) and present path endpoints as ordinary rows.
//
// Rows intern binding names and terms to small integers in a per-query
// QueryContext. Queries with few bindings use a bitset row; larger ones
// use sorted pairs.
//
// CRITICAL PATTERNS:
//
// Determinism:
// Results are independent of delta order and of how deltas are batched.
// Change lists are sorted by mapping, then kind.
//
// Count underflow:
// Retracting what was never added breaks the listener contract. It panics
// with a *RuntimeError coded COUNT_UNDERFLOW; RecoverUnderflow turns it
// back into an error at process boundaries.
//
// Single writer:
// A Query processes one delta at a time. Engine hosts many queries behind
// one FIFO queue drained by a single Run goroutine.
package engine
