package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sparqlflow/internal/ir"
)

// memLog is a ChangeLog over a slice.
type memLog []ir.DataDelta

func (l memLog) Changes(ctx context.Context, since int64, fn func(ir.DataDelta) error) error {
	for _, d := range l {
		if d.Seq <= since {
			continue
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func logged(seq int64, d ir.DataDelta) ir.DataDelta {
	d.Seq = seq
	return d
}

func TestReplay_FullLog(t *testing.T) {
	log := memLog{
		logged(1, ir.Added(typed("alice", "Person"))),
		logged(2, ir.Added(typed("bob", "Person"))),
		logged(3, ir.Removed(typed("alice", "Person"))),
	}
	query := prepare(t, personQuery())

	last, err := Replay(t.Context(), query, log, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
	assert.Equal(t, []string{"{?n=<http://example.org/bob>}"}, rendered(query))

	// live stamps continue after the log
	changes := add(t, query, typed("carol", "Person"))
	require.Len(t, changes, 1)
	assert.Equal(t, int64(4), changes[0].Origin.Seq)
}

// Replaying from a checkpoint onto a query that already saw the prefix
// ends where a full replay ends.
func TestReplay_FromCheckpoint(t *testing.T) {
	log := memLog{
		logged(1, ir.Added(typed("alice", "Person"))),
		logged(2, ir.Added(typed("bob", "Person"))),
		logged(3, ir.Removed(typed("alice", "Person"))),
		logged(4, ir.Added(typed("carol", "Person"))),
	}
	full := prepare(t, personQuery())
	_, err := Replay(t.Context(), full, log, 0)
	require.NoError(t, err)

	partial := prepare(t, personQuery())
	last, err := Replay(t.Context(), partial, log[:2], 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), last)
	last, err = Replay(t.Context(), partial, log, last)
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)

	assert.Equal(t, rendered(full), rendered(partial))
}

func TestReplay_EmptyLog(t *testing.T) {
	query := prepare(t, personQuery())
	last, err := Replay(t.Context(), query, memLog{}, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), last, "nothing applied keeps the checkpoint")
}

func TestReplay_StopsOnError(t *testing.T) {
	log := memLog{
		logged(1, ir.Added(typed("alice", "Person"))),
		logged(2, ir.Added(ir.Quad{Subject: ir.NewLiteral("bad"), Predicate: ir.RDFType, Object: ex("Person")})),
		logged(3, ir.Added(typed("bob", "Person"))),
	}
	query := prepare(t, personQuery())

	last, err := Replay(t.Context(), query, log, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seq 2")
	assert.Equal(t, int64(1), last)
	assert.Equal(t, 1, query.Len())
}

func TestReplay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	query := prepare(t, personQuery())
	_, err := Replay(ctx, query, memLog{logged(1, ir.Added(typed("alice", "Person")))}, 0)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, query.Len())
}

func TestReplay_OriginsKeepLoggedSeq(t *testing.T) {
	var got []ResultChange
	query := prepare(t, personQuery(), WithChangeHandler(func(_ string, cs []ResultChange) {
		got = append(got, cs...)
	}))
	// Replay reports through Process, not the handler.
	_, err := Replay(t.Context(), query, memLog{logged(17, ir.Added(typed("alice", "Person")))}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	changes := remove(t, query, typed("alice", "Person"))
	require.Len(t, changes, 1)
	assert.Equal(t, int64(18), changes[0].Origin.Seq)
}
