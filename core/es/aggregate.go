package es

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/cqrskit/core/ds"
)

var ErrNilEvent = errors.New("nil event")

// Aggregate is the type-erased view of a Root used by stores and the
// command pipeline.
type Aggregate interface {
	GetAggType() string
	GetID() string
	GetVersion() Version
	setVersion(Version)

	// Apply runs the reducers for ev and appends it to the pending buffer.
	// Applying an event id twice is a no-op. When a reducer fails the state
	// keeps its value from before the call, except for in-place changes to
	// maps and slices it holds; discard the aggregate if those matter.
	Apply(ev DomainEvent) error
	// IsApplied reports whether an event id was applied since the last
	// ClearEvents.
	IsApplied(eventID string) bool
	// PendingEvents returns a copy of the events applied since the last
	// ClearEvents, in apply order.
	PendingEvents() []DomainEvent
	// ClearEvents empties the pending buffer and the applied-id set.
	ClearEvents()

	// Serialize encodes the state only. Deserialize restores it.
	Serialize() ([]byte, error)
	Deserialize(data []byte) error
	StateAny() any
}

// Root is the aggregate root over state S.
type Root[S any] struct {
	aggType  string
	id       string
	version  Version
	state    S
	reducers *ReducerTable[S]
	pending  []DomainEvent
	applied  ds.Set[string]
}

// NewRoot creates an aggregate with the given initial state. An empty id is
// replaced by a generated one.
func NewRoot[S any](aggType, id string, reducers *ReducerTable[S], initial S) *Root[S] {
	if id == "" {
		id = gonanoid.Must()
	}
	if reducers == nil {
		reducers = NewReducerTable[S]()
	}
	return &Root[S]{aggType: aggType, id: id, reducers: reducers, state: initial}
}

func (r *Root[S]) GetAggType() string         { return r.aggType }
func (r *Root[S]) GetID() string              { return r.id }
func (r *Root[S]) GetVersion() Version        { return r.version }
func (r *Root[S]) setVersion(v Version)       { r.version = v }
func (r *Root[S]) State() S                   { return r.state }
func (r *Root[S]) StateAny() any              { return r.state }
func (r *Root[S]) Reducers() *ReducerTable[S] { return r.reducers }

func (r *Root[S]) Apply(ev DomainEvent) error {
	if ev == nil {
		return ErrNilEvent
	}
	meta := ev.EventMeta()
	if meta.EventID == "" {
		meta.EventID = gonanoid.Must()
	}
	if r.applied.Contains(meta.EventID) {
		return nil
	}
	// reducers work on a copy so a failing one leaves the state as it was;
	// maps and slices inside S are still shared with that copy
	next := r.state
	if err := r.reducers.reduce(&next, ev); err != nil {
		return fmt.Errorf("apply %s to %s/%s: %w", ev.EventType(), r.aggType, r.id, err)
	}
	r.state = next

	r.version++
	if meta.AggregateID == "" {
		meta.AggregateID = r.id
	}
	if meta.AggregateType == "" {
		meta.AggregateType = r.aggType
	}
	if meta.Version == 0 {
		meta.Version = r.version
	}
	r.pending = append(r.pending, ev)
	r.applied.Add(meta.EventID)
	return nil
}

func (r *Root[S]) IsApplied(eventID string) bool { return r.applied.Contains(eventID) }

func (r *Root[S]) PendingEvents() []DomainEvent {
	out := make([]DomainEvent, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *Root[S]) ClearEvents() {
	r.pending = nil
	r.applied.Clear()
}

func (r *Root[S]) Serialize() ([]byte, error) { return json.Marshal(r.state) }

func (r *Root[S]) Deserialize(data []byte) error {
	if err := json.Unmarshal(data, &r.state); err != nil {
		return fmt.Errorf("deserialize %s/%s: %w", r.aggType, r.id, err)
	}
	return nil
}

func (r *Root[S]) MarshalJSON() ([]byte, error) { return r.Serialize() }

func (r *Root[S]) LogAttrs() slog.Attr {
	return slog.Group("agg",
		slog.String("type", r.aggType),
		slog.String("id", r.id),
		r.version.SlogAttr(),
	)
}

var _ Aggregate = (*Root[struct{}])(nil)
