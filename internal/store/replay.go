package store

import (
	"context"
	"fmt"

	"github.com/roach88/sparqlflow/internal/ir"
)

// changesPageSize bounds the rows read per round trip in Changes.
const changesPageSize = 500

// Changes calls fn for every logged change with seq > since, in seq order.
// Each delta carries its seq. Pages are read before fn is called, so fn may
// use the store's read methods.
//
// Changes implements engine.ChangeLog.
func (s *Store) Changes(ctx context.Context, since int64, fn func(d ir.DataDelta) error) error {
	last := since
	for {
		page, err := s.readChanges(ctx, last, changesPageSize)
		if err != nil {
			return err
		}
		for _, d := range page {
			if err := fn(d); err != nil {
				return err
			}
			last = d.Seq
		}
		if len(page) < changesPageSize {
			return nil
		}
	}
}

func (s *Store) readChanges(ctx context.Context, since int64, limit int) ([]ir.DataDelta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.seq, c.kind, ts.text, tp.text, tobj.text, tg.text
		FROM changes c
		JOIN terms ts ON ts.id = c.s
		JOIN terms tp ON tp.id = c.p
		JOIN terms tobj ON tobj.id = c.o
		JOIN terms tg ON tg.id = c.g
		WHERE c.seq > ?
		ORDER BY c.seq ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []ir.DataDelta
	for rows.Next() {
		var (
			seq                   int64
			kind                  int
			sub, pred, obj, graph string
		)
		if err := rows.Scan(&seq, &kind, &sub, &pred, &obj, &graph); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		q, err := unmarshalQuad(sub, pred, obj, graph)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", seq, err)
		}
		out = append(out, ir.DataDelta{Kind: ir.DeltaKind(kind), Quad: q, Seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return out, nil
}

// LastSeq returns the seq of the newest logged change, zero for an empty
// log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
