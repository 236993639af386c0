package engine

import (
	"context"

	"github.com/roach88/sparqlflow/internal/ir"
)

// Listener receives store changes. A store calls it synchronously once per
// stored occurrence: adding a quad twice calls OnQuadAdded twice.
type Listener interface {
	OnQuadAdded(q ir.Quad)
	OnQuadRemoved(q ir.Quad)
}

// Source is a quad store a query can subscribe to.
type Source interface {
	// Each calls fn once per stored occurrence of every quad.
	Each(ctx context.Context, fn func(q ir.Quad) error) error
	Register(l Listener)
	Unregister(l Listener)
}

// Attacher is implemented by sources that can replay their contents and
// register a listener without letting a concurrent write slip between the
// two.
type Attacher interface {
	Attach(ctx context.Context, l Listener) error
}

// ChangeHandler receives the result changes one delta caused in a query.
type ChangeHandler func(queryID string, changes []ResultChange)
