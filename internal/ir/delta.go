package ir

import "fmt"

// DeltaKind is the polarity of a change.
type DeltaKind uint8

const (
	// Addition adds one occurrence.
	Addition DeltaKind = iota + 1
	// Deletion retracts one occurrence.
	Deletion
)

// String returns "add" or "remove".
func (k DeltaKind) String() string {
	switch k {
	case Addition:
		return "add"
	case Deletion:
		return "remove"
	default:
		return fmt.Sprintf("DeltaKind(%d)", uint8(k))
	}
}

// Sign returns +1 for Addition and -1 for Deletion.
func (k DeltaKind) Sign() int {
	if k == Deletion {
		return -1
	}
	return 1
}

// Inverse returns the opposite polarity.
func (k DeltaKind) Inverse() DeltaKind {
	if k == Deletion {
		return Addition
	}
	return Deletion
}

// Delta is a sealed interface over incremental changes.
// Only DataDelta and BindingsDelta implement it.
type Delta interface {
	DeltaKind() DeltaKind
	delta() // Sealed
}

// DataDelta is a change to the stored quads.
type DataDelta struct {
	Kind DeltaKind
	Quad Quad

	// Seq is the logical position of this change in its source's stream.
	// Zero when the producer does not stamp changes.
	Seq int64
}

func (DataDelta) delta() {}

// DeltaKind returns the polarity.
func (d DataDelta) DeltaKind() DeltaKind { return d.Kind }

// Origin identifies the quad delta a derived binding came from.
type Origin struct {
	Seq    int64  `json:"seq"`
	QuadID string `json:"quad_id"`
}

// OriginOf returns the origin of a data delta.
func OriginOf(d DataDelta) Origin {
	return Origin{Seq: d.Seq, QuadID: QuadID(d.Quad)}
}

// BindingsDelta is a change to a derived binding multiset.
// Origin lists the quad deltas that contributed to Mapping; a deletion
// retracts exactly the occurrence those deltas produced.
type BindingsDelta struct {
	Kind    DeltaKind
	Mapping Mapping
	Origin  []Origin
}

func (BindingsDelta) delta() {}

// DeltaKind returns the polarity.
func (d BindingsDelta) DeltaKind() DeltaKind { return d.Kind }

// Added creates an Addition data delta.
func Added(q Quad) DataDelta {
	return DataDelta{Kind: Addition, Quad: q.Normalize()}
}

// Removed creates a Deletion data delta.
func Removed(q Quad) DataDelta {
	return DataDelta{Kind: Deletion, Quad: q.Normalize()}
}

// Combine joins two bindings deltas into one.
// It succeeds only when both are BindingsDelta values of the same polarity
// with compatible mappings; the merged delta carries both origin lists.
func Combine(a, b Delta) (Delta, bool) {
	x, ok := a.(BindingsDelta)
	if !ok {
		return nil, false
	}
	y, ok := b.(BindingsDelta)
	if !ok {
		return nil, false
	}
	if x.Kind != y.Kind || !x.Mapping.Compatible(y.Mapping) {
		return nil, false
	}
	origin := make([]Origin, 0, len(x.Origin)+len(y.Origin))
	origin = append(origin, x.Origin...)
	origin = append(origin, y.Origin...)
	return BindingsDelta{
		Kind:    x.Kind,
		Mapping: x.Mapping.Merge(y.Mapping),
		Origin:  origin,
	}, true
}
