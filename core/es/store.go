package es

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSnapshotNotFound     = errors.New("snapshot not found")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
	ErrInvalidAggregateType = errors.New("invalid aggregate type")
)

// StateStore holds the latest snapshot per aggregate.
type StateStore interface {
	// Get returns ErrSnapshotNotFound when no snapshot exists.
	Get(ctx context.Context, aggType, aggID string) (*Snapshot, error)
	Save(ctx context.Context, aggType, aggID string, ss *Snapshot) error
}

// EventStore holds the ordered event log per aggregate.
type EventStore interface {
	// Load returns the events of one aggregate in append order. An unknown
	// aggregate has an empty log.
	Load(ctx context.Context, aggType, aggID string) ([]DomainEvent, error)
	// Append never reports ErrConcurrencyConflict: a plain append has no
	// expectation to violate.
	Append(ctx context.Context, aggType, aggID string, events []DomainEvent) error
}

// VersionedEventStore is an EventStore that can append conditionally.
type VersionedEventStore interface {
	EventStore
	// AppendExpect appends only if the log currently holds exactly expected
	// events, and returns ErrConcurrencyConflict otherwise. A conflict
	// writes nothing.
	AppendExpect(ctx context.Context, aggType, aggID string, expected Version, events []DomainEvent) error
}

// TailLoader is an EventStore that can load the events following a version
// without reading the whole log.
type TailLoader interface {
	LoadAfter(ctx context.Context, aggType, aggID string, after Version) ([]DomainEvent, error)
}

// LoadAfter returns the events of one aggregate that follow version after,
// that is the log from position after+1 on.
func LoadAfter(ctx context.Context, store EventStore, aggType, aggID string, after Version) ([]DomainEvent, error) {
	if tl, ok := store.(TailLoader); ok {
		return tl.LoadAfter(ctx, aggType, aggID, after)
	}
	events, err := store.Load(ctx, aggType, aggID)
	if err != nil {
		return nil, err
	}
	if uint64(len(events)) <= after.Uint64() {
		return nil, nil
	}
	return events[after:], nil
}

// CheckAggregateType rejects aggregate types that are empty or contain one
// of the runes in reserved. Stores call it when the type is joined into a
// key with one of those runes as separator.
func CheckAggregateType(aggType, reserved string) error {
	if aggType == "" || strings.ContainsAny(aggType, reserved) {
		return fmt.Errorf("%w: %q", ErrInvalidAggregateType, aggType)
	}
	return nil
}
