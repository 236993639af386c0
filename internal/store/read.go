package store

import (
	"context"
	"fmt"

	"github.com/roach88/sparqlflow/internal/ir"
)

// StoredQuad is a distinct quad with its multiplicity.
type StoredQuad struct {
	Quad  ir.Quad
	Count int
}

// Quads returns every distinct stored quad with its count.
// Results are ordered deterministically by subject, predicate, object and
// graph text, COLLATE BINARY.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) Quads(ctx context.Context) ([]StoredQuad, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts.text, tp.text, tobj.text, tg.text, q.count
		FROM quads q
		JOIN terms ts ON ts.id = q.s
		JOIN terms tp ON tp.id = q.p
		JOIN terms tobj ON tobj.id = q.o
		JOIN terms tg ON tg.id = q.g
		ORDER BY ts.text COLLATE BINARY ASC, tp.text COLLATE BINARY ASC,
			tobj.text COLLATE BINARY ASC, tg.text COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query quads: %w", err)
	}
	defer rows.Close()

	out := []StoredQuad{}
	for rows.Next() {
		var sub, pred, obj, graph string
		var count int
		if err := rows.Scan(&sub, &pred, &obj, &graph, &count); err != nil {
			return nil, fmt.Errorf("scan quad: %w", err)
		}
		q, err := unmarshalQuad(sub, pred, obj, graph)
		if err != nil {
			return nil, err
		}
		out = append(out, StoredQuad{Quad: q, Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quads: %w", err)
	}
	return out, nil
}

// Each calls fn once per stored occurrence of every quad, in Quads order.
// The rows are read before fn is first called, so fn may use the store's
// read methods.
func (s *Store) Each(ctx context.Context, fn func(q ir.Quad) error) error {
	quads, err := s.Quads(ctx)
	if err != nil {
		return err
	}
	for _, sq := range quads {
		for range sq.Count {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(sq.Quad); err != nil {
				return err
			}
		}
	}
	return nil
}

// Count returns the multiplicity of q, zero when it is not stored.
func (s *Store) Count(ctx context.Context, q ir.Quad) (int, error) {
	q = q.Normalize()
	terms := []ir.Term{q.Subject, q.Predicate, q.Object, q.GraphTerm()}
	args := make([]any, len(terms))
	for i, t := range terms {
		_, text, err := marshalTerm(t)
		if err != nil {
			return 0, fmt.Errorf("count quad: %w", err)
		}
		args[i] = text
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(q.count), 0)
		FROM quads q
		JOIN terms ts ON ts.id = q.s
		JOIN terms tp ON tp.id = q.p
		JOIN terms tobj ON tobj.id = q.o
		JOIN terms tg ON tg.id = q.g
		WHERE ts.text = ? AND tp.text = ? AND tobj.text = ? AND tg.text = ?
	`, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count quad: %w", err)
	}
	return count, nil
}

// Len returns the number of stored occurrences across all quads.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(count), 0) FROM quads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quads: %w", err)
	}
	return n, nil
}

// TermCount returns the number of interned terms.
func (s *Store) TermCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM terms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count terms: %w", err)
	}
	return n, nil
}
