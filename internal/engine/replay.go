package engine

import (
	"context"
	"fmt"

	"github.com/roach88/sparqlflow/internal/ir"
)

// ChangeLog is an ordered log of data deltas, such as the store's changes
// table. Changes calls fn for every delta with Seq > since, in Seq order.
type ChangeLog interface {
	Changes(ctx context.Context, since int64, fn func(d ir.DataDelta) error) error
}

// Replay feeds every logged delta after since into q and returns the
// sequence number of the last one applied.
//
// Replay uses the same Process path as live updates, so a fresh query
// replayed over the full log ends with the results it would hold had it
// been subscribed from the start:
//
//	q, _ := engine.Prepare(tree)
//	last, err := engine.Replay(ctx, q, store, 0)
//
// Deltas keep their logged sequence numbers, so origins match the live run,
// and the query's clock is moved past the last one.
// A log that retracts a quad it never added causes a count underflow.
func Replay(ctx context.Context, q *Query, log ChangeLog, since int64) (int64, error) {
	last := since
	err := log.Changes(ctx, since, func(d ir.DataDelta) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := q.Process(d); err != nil {
			return fmt.Errorf("seq %d: %w", d.Seq, err)
		}
		q.clock.Observe(d.Seq)
		last = d.Seq
		return nil
	})
	if err != nil {
		return last, fmt.Errorf("replay %s: %w", q.ID(), err)
	}
	q.logger.Info("query replayed", "query", q.ID(), "since", since, "last_seq", last)
	return last, nil
}
