package es

import (
	"context"
	"errors"
)

// InstrumentEventStore records load and append timings of store into m.
// The result is a VersionedEventStore if store is one.
func InstrumentEventStore(store EventStore, m ESMetrics) EventStore {
	base := instrumentedEventStore{store: store, m: m}
	if vs, ok := store.(VersionedEventStore); ok {
		return &instrumentedVersionedEventStore{instrumentedEventStore: base, vs: vs}
	}
	return &base
}

type instrumentedEventStore struct {
	store EventStore
	m     ESMetrics
}

func (s *instrumentedEventStore) Load(ctx context.Context, aggType, aggID string) ([]DomainEvent, error) {
	defer s.m.StoreLoadDuration(aggType).ObserveDuration()
	return s.store.Load(ctx, aggType, aggID)
}

func (s *instrumentedEventStore) LoadAfter(ctx context.Context, aggType, aggID string, after Version) ([]DomainEvent, error) {
	defer s.m.StoreLoadDuration(aggType).ObserveDuration()
	return LoadAfter(ctx, s.store, aggType, aggID, after)
}

func (s *instrumentedEventStore) Append(ctx context.Context, aggType, aggID string, events []DomainEvent) error {
	t := s.m.StoreAppendDuration(aggType)
	err := s.store.Append(ctx, aggType, aggID, events)
	t.ObserveDuration()
	if err == nil {
		s.m.EventsAppended(aggType, len(events))
	}
	return err
}

type instrumentedVersionedEventStore struct {
	instrumentedEventStore
	vs VersionedEventStore
}

func (s *instrumentedVersionedEventStore) AppendExpect(ctx context.Context, aggType, aggID string, expected Version, events []DomainEvent) error {
	t := s.m.StoreAppendDuration(aggType)
	err := s.vs.AppendExpect(ctx, aggType, aggID, expected, events)
	t.ObserveDuration()
	switch {
	case err == nil:
		s.m.EventsAppended(aggType, len(events))
	case errors.Is(err, ErrConcurrencyConflict):
		s.m.ConcurrencyConflict(aggType)
	}
	return err
}

// InstrumentStateStore records snapshot load and save timings of store into m.
func InstrumentStateStore(store StateStore, m ESMetrics) StateStore {
	return &instrumentedStateStore{store: store, m: m}
}

type instrumentedStateStore struct {
	store StateStore
	m     ESMetrics
}

func (s *instrumentedStateStore) Get(ctx context.Context, aggType, aggID string) (*Snapshot, error) {
	defer s.m.SnapshotLoadDuration(aggType).ObserveDuration()
	return s.store.Get(ctx, aggType, aggID)
}

func (s *instrumentedStateStore) Save(ctx context.Context, aggType, aggID string, ss *Snapshot) error {
	defer s.m.SnapshotSaveDuration(aggType).ObserveDuration()
	return s.store.Save(ctx, aggType, aggID, ss)
}
