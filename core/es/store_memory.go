package es

import (
	"context"
	"fmt"
	"sync"
)

type streamKey struct{ aggType, aggID string }

// InMemoryEventStore keeps event logs in memory. Events are stored by
// reference.
type InMemoryEventStore struct {
	mu      sync.RWMutex
	streams map[streamKey][]DomainEvent
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{streams: map[streamKey][]DomainEvent{}}
}

func (s *InMemoryEventStore) Load(ctx context.Context, aggType, aggID string) ([]DomainEvent, error) {
	return s.LoadAfter(ctx, aggType, aggID, 0)
}

func (s *InMemoryEventStore) LoadAfter(_ context.Context, aggType, aggID string, after Version) ([]DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.streams[streamKey{aggType, aggID}]
	if uint64(len(events)) <= after.Uint64() {
		return []DomainEvent{}, nil
	}
	out := make([]DomainEvent, len(events)-int(after))
	copy(out, events[after:])
	return out, nil
}

func (s *InMemoryEventStore) Append(_ context.Context, aggType, aggID string, events []DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk := streamKey{aggType, aggID}
	s.streams[sk] = append(s.streams[sk], events...)
	return nil
}

func (s *InMemoryEventStore) AppendExpect(_ context.Context, aggType, aggID string, expected Version, events []DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk := streamKey{aggType, aggID}
	if cur := Version(len(s.streams[sk])); cur != expected {
		return fmt.Errorf("%w: %s/%s expected version %d, have %d", ErrConcurrencyConflict, aggType, aggID, expected, cur)
	}
	s.streams[sk] = append(s.streams[sk], events...)
	return nil
}

// InMemoryStateStore keeps snapshots in memory.
type InMemoryStateStore struct {
	mu        sync.RWMutex
	snapshots map[streamKey]*Snapshot
}

func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{snapshots: map[streamKey]*Snapshot{}}
}

func (s *InMemoryStateStore) Get(_ context.Context, aggType, aggID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.snapshots[streamKey{aggType, aggID}]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return ss, nil
}

func (s *InMemoryStateStore) Save(_ context.Context, aggType, aggID string, ss *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[streamKey{aggType, aggID}] = ss
	return nil
}

var (
	_ VersionedEventStore = (*InMemoryEventStore)(nil)
	_ TailLoader          = (*InMemoryEventStore)(nil)
	_ StateStore          = (*InMemoryStateStore)(nil)
)
