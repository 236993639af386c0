package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sparqlflow/internal/ir"
)

// quadIDs are the term row ids of a quad.
type quadIDs struct {
	s, p, o, g int64
}

func (q quadIDs) args() []any {
	return []any{q.s, q.p, q.o, q.g}
}

// Add stores one more occurrence of q, logs the change and notifies every
// listener. Returns the change's sequence number.
func (s *Store) Add(ctx context.Context, q ir.Quad) (int64, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return 0, fmt.Errorf("add quad: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add quad: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	fresh := make(map[string]int64)
	ids, err := s.internQuad(ctx, tx, q, fresh)
	if err != nil {
		return 0, fmt.Errorf("add quad: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quads (s, p, o, g, count) VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(s, p, o, g) DO UPDATE SET count = count + 1
	`, ids.args()...)
	if err != nil {
		return 0, fmt.Errorf("add quad: %w", err)
	}

	seq, err := logChange(ctx, tx, ir.Addition, ids)
	if err != nil {
		return 0, fmt.Errorf("add quad: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add quad: commit: %w", err)
	}
	for text, id := range fresh {
		s.terms.Add(text, id)
	}

	s.logger.Debug("quad added", "quad", q.String(), "seq", seq)
	for _, l := range s.listeners {
		l.OnQuadAdded(q)
	}
	return seq, nil
}

// Remove retracts one occurrence of q, logs the change and notifies every
// listener. Returns ErrQuadNotFound when q is not stored; no listener is
// called in that case.
func (s *Store) Remove(ctx context.Context, q ir.Quad) (int64, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return 0, fmt.Errorf("remove quad: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("remove quad: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	ids, ok, err := s.lookupQuad(ctx, tx, q)
	if err != nil {
		return 0, fmt.Errorf("remove quad: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("remove %s: %w", q, ErrQuadNotFound)
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT count FROM quads WHERE s = ? AND p = ? AND o = ? AND g = ?
	`, ids.args()...).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("remove %s: %w", q, ErrQuadNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("remove quad: %w", err)
	}

	if count == 1 {
		_, err = tx.ExecContext(ctx, `DELETE FROM quads WHERE s = ? AND p = ? AND o = ? AND g = ?`, ids.args()...)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE quads SET count = count - 1 WHERE s = ? AND p = ? AND o = ? AND g = ?`, ids.args()...)
	}
	if err != nil {
		return 0, fmt.Errorf("remove quad: %w", err)
	}

	seq, err := logChange(ctx, tx, ir.Deletion, ids)
	if err != nil {
		return 0, fmt.Errorf("remove quad: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("remove quad: commit: %w", err)
	}

	s.logger.Debug("quad removed", "quad", q.String(), "seq", seq)
	for _, l := range s.listeners {
		l.OnQuadRemoved(q)
	}
	return seq, nil
}

func logChange(ctx context.Context, tx *sql.Tx, kind ir.DeltaKind, ids quadIDs) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO changes (kind, s, p, o, g) VALUES (?, ?, ?, ?, ?)
	`, int(kind), ids.s, ids.p, ids.o, ids.g)
	if err != nil {
		return 0, fmt.Errorf("log change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("log change: %w", err)
	}
	return seq, nil
}

// internQuad resolves or creates the term ids of q. Ids created in this
// transaction are recorded in fresh and cached only after commit.
func (s *Store) internQuad(ctx context.Context, tx *sql.Tx, q ir.Quad, fresh map[string]int64) (quadIDs, error) {
	var ids quadIDs
	for _, slot := range []struct {
		t  ir.Term
		id *int64
	}{
		{q.Subject, &ids.s},
		{q.Predicate, &ids.p},
		{q.Object, &ids.o},
		{q.GraphTerm(), &ids.g},
	} {
		id, err := s.internTerm(ctx, tx, slot.t, fresh)
		if err != nil {
			return quadIDs{}, err
		}
		*slot.id = id
	}
	return ids, nil
}

func (s *Store) internTerm(ctx context.Context, tx *sql.Tx, t ir.Term, fresh map[string]int64) (int64, error) {
	kind, text, err := marshalTerm(t)
	if err != nil {
		return 0, err
	}
	if id, ok := fresh[text]; ok {
		return id, nil
	}
	if id, ok := s.terms.Get(text); ok {
		return id, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO terms (kind, text) VALUES (?, ?)
		ON CONFLICT(text) DO NOTHING
	`, int(kind), text)
	if err != nil {
		return 0, fmt.Errorf("intern term %s: %w", text, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM terms WHERE text = ?`, text).Scan(&id); err != nil {
		return 0, fmt.Errorf("intern term %s: %w", text, err)
	}
	fresh[text] = id
	return id, nil
}

// lookupQuad resolves the term ids of q without creating any. ok is false
// when some term was never stored.
func (s *Store) lookupQuad(ctx context.Context, tx *sql.Tx, q ir.Quad) (quadIDs, bool, error) {
	var ids quadIDs
	for _, slot := range []struct {
		t  ir.Term
		id *int64
	}{
		{q.Subject, &ids.s},
		{q.Predicate, &ids.p},
		{q.Object, &ids.o},
		{q.GraphTerm(), &ids.g},
	} {
		_, text, err := marshalTerm(slot.t)
		if err != nil {
			return quadIDs{}, false, err
		}
		if id, ok := s.terms.Get(text); ok {
			*slot.id = id
			continue
		}
		err = tx.QueryRowContext(ctx, `SELECT id FROM terms WHERE text = ?`, text).Scan(slot.id)
		if errors.Is(err, sql.ErrNoRows) {
			return quadIDs{}, false, nil
		}
		if err != nil {
			return quadIDs{}, false, fmt.Errorf("lookup term %s: %w", text, err)
		}
		s.terms.Add(text, *slot.id)
	}
	return ids, true, nil
}
