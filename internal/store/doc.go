// Package store provides a SQLite-backed quad store that queries can
// subscribe to.
//
// The store keeps:
//   - Terms: every term interned once, addressed by row id
//   - Quads: one row per distinct quad with its multiplicity
//   - Changes: an append-only log of additions and deletions
//
// # Critical Patterns
//
// Multiplicity: adding a quad twice stores it with count 2, and listeners
// and Each see it twice. Removing a quad that is not stored fails with
// ErrQuadNotFound instead of reaching any listener.
//
// Logical time: every change is numbered by the seq column of the changes
// table, never by wall time, so a replay reproduces the live order.
//
// Deterministic reads: every query orders by term text COLLATE BINARY or by
// seq, so identical stores read identically.
//
// Single writer: writes, listener dispatch and Attach are serialized by one
// mutex. Listeners run synchronously inside a write and must not call back
// into the store.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
