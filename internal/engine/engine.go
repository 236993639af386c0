package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/sparqlflow/internal/ir"
)

// Engine hosts many queries behind one store listener.
//
// Store callbacks only stamp and enqueue; the Run loop dispatches each
// delta to every registered query in registration order and hands the
// resulting changes to the ChangeHandler. Registration goes through the
// same queue, so a query registered late is first primed with every quad
// the engine has already dispatched.
//
// Thread-safety model:
//   - OnQuadAdded, OnQuadRemoved, Enqueue, Register, Unregister: any goroutine
//   - Run: exactly one goroutine
//
// INVARIANTS:
//   - Query order never changes except by Unregister
//   - The mirror holds exactly the quads dispatched and not yet retracted
type Engine struct {
	clock    *Clock
	queue    *eventQueue
	logger   *slog.Logger
	onChange ChangeHandler
	strict   bool

	// Owned by the Run goroutine.
	queries []*Query
	mirror  map[ir.Quad]int
}

// NewEngine creates an engine. WithClock, WithLogger, WithChangeHandler and
// WithStrictRetractions apply; other options are ignored.
func NewEngine(opts ...Option) *Engine {
	cfg := newConfig(opts)
	return &Engine{
		clock:    cfg.clock,
		queue:    newEventQueue(),
		logger:   cfg.logger,
		onChange: cfg.onChange,
		strict:   cfg.strict,
		mirror:   make(map[ir.Quad]int),
	}
}

// Clock returns the clock that stamps enqueued deltas. Prepare queries with
// WithClock(e.Clock()) to share it.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// QueueLen returns the number of pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// OnQuadAdded implements Listener.
func (e *Engine) OnQuadAdded(q ir.Quad) {
	e.Enqueue(ir.Added(q))
}

// OnQuadRemoved implements Listener.
func (e *Engine) OnQuadRemoved(q ir.Quad) {
	e.Enqueue(ir.Removed(q))
}

// Enqueue stamps d when it has no sequence number and queues it for
// dispatch. Returns false once the engine has stopped.
func (e *Engine) Enqueue(d ir.DataDelta) bool {
	if d.Seq == 0 {
		d.Seq = e.clock.Next()
	}
	d.Quad = d.Quad.Normalize()
	return e.queue.Enqueue(Event{Type: EventTypeDelta, Delta: d})
}

// Register queues q for hosting.
func (e *Engine) Register(q *Query) bool {
	return e.queue.Enqueue(Event{Type: EventTypeRegister, Query: q})
}

// Unregister queues the removal of q.
func (e *Engine) Unregister(q *Query) bool {
	return e.queue.Enqueue(Event{Type: EventTypeUnregister, Query: q})
}

// Attach queues every quad stored in src and registers the engine as its
// listener, atomically when src implements Attacher.
func (e *Engine) Attach(ctx context.Context, src Source) error {
	if a, ok := src.(Attacher); ok {
		return a.Attach(ctx, e)
	}
	err := src.Each(ctx, func(q ir.Quad) error {
		if !e.Enqueue(ir.Added(q)) {
			return errors.New("engine stopped")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	src.Register(e)
	return nil
}

// Run starts the single-writer event loop and blocks until ctx is
// cancelled or Stop is called.
//
// A failing event is logged with its context and the loop continues;
// retrying would make dispatch order depend on timing. Under
// WithStrictRetractions an unmatched removal panics instead.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "queries", len(e.queries))

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ev); err != nil {
				e.logEventError(ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Drained() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run drains pending events, then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) processEvent(ev Event) error {
	switch ev.Type {
	case EventTypeDelta:
		return e.dispatch(ev.Delta)
	case EventTypeRegister:
		if ev.Query == nil {
			return errors.New("register event missing query")
		}
		return e.register(ev.Query)
	case EventTypeUnregister:
		if ev.Query == nil {
			return errors.New("unregister event missing query")
		}
		e.unregister(ev.Query)
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
}

func (e *Engine) dispatch(d ir.DataDelta) error {
	if d.Kind == ir.Deletion {
		n := e.mirror[d.Quad]
		if n == 0 {
			err := NewUnderflowError("engine", "quad removed but never dispatched")
			if e.strict {
				panic(err)
			}
			return err
		}
		if n == 1 {
			delete(e.mirror, d.Quad)
		} else {
			e.mirror[d.Quad] = n - 1
		}
	} else {
		e.mirror[d.Quad]++
	}

	for _, q := range e.queries {
		changes, err := q.Process(d)
		if err != nil {
			e.logger.Error("query rejected delta",
				"query", q.ID(),
				"seq", d.Seq,
				"error", err,
			)
			continue
		}
		if len(changes) > 0 && e.onChange != nil {
			e.onChange(q.ID(), changes)
		}
	}
	return nil
}

// register primes q with the mirror, in quad order, then appends it.
func (e *Engine) register(q *Query) error {
	if slices.Contains(e.queries, q) {
		return fmt.Errorf("query %s already registered", q.ID())
	}
	quads := make([]ir.Quad, 0, len(e.mirror))
	for quad := range e.mirror {
		quads = append(quads, quad)
	}
	slices.SortFunc(quads, func(a, b ir.Quad) int {
		return strings.Compare(a.String(), b.String())
	})
	for _, quad := range quads {
		for range e.mirror[quad] {
			if _, err := q.Process(ir.Added(quad)); err != nil {
				return fmt.Errorf("prime query %s: %w", q.ID(), err)
			}
		}
	}
	e.queries = append(e.queries, q)
	e.logger.Info("query registered", "query", q.ID(), "results", q.Len())
	return nil
}

func (e *Engine) unregister(q *Query) {
	i := slices.Index(e.queries, q)
	if i < 0 {
		return
	}
	e.queries = slices.Delete(e.queries, i, i+1)
	e.logger.Info("query unregistered", "query", q.ID())
}

// logEventError logs a failed event with enough context to replay it by
// hand.
func (e *Engine) logEventError(ev Event, err error) {
	switch ev.Type {
	case EventTypeDelta:
		var code RuntimeErrorCode
		var re *RuntimeError
		if errors.As(err, &re) {
			code = re.Code
		}
		e.logger.Error("delta dispatch failed",
			"error", err,
			"code", string(code),
			"kind", ev.Delta.Kind.String(),
			"quad", ev.Delta.Quad.String(),
			"seq", ev.Delta.Seq,
		)
	case EventTypeRegister, EventTypeUnregister:
		id := ""
		if ev.Query != nil {
			id = ev.Query.ID()
		}
		e.logger.Error("query event failed",
			"error", err,
			"event_type", ev.Type.String(),
			"query", id,
		)
	default:
		e.logger.Error("event processing failed",
			"error", err,
			"event_type", ev.Type,
		)
	}
}
