package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codewandler/cqrskit/ports/kv"
)

// KeyValueStateStore persists snapshots as JSON in a kv.Store under
// "snapshot.<type>.<id>". Aggregate types must not contain '.'.
type KeyValueStateStore struct {
	store kv.Store
	log   *slog.Logger
	ttl   time.Duration
}

func NewKeyValueStateStore(store kv.Store, opts ...KVStateStoreOption) *KeyValueStateStore {
	options := kvStateStoreOpts{log: slog.Default()}
	for _, opt := range opts {
		opt.applyToKVStateStore(&options)
	}
	return &KeyValueStateStore{
		store: store,
		log:   options.log.With(slog.String("state_store", "kv")),
		ttl:   options.ttl,
	}
}

func snapshotKey(aggType, aggID string) string { return kv.Key("snapshot", aggType, aggID) }

func (s *KeyValueStateStore) Get(ctx context.Context, aggType, aggID string) (*Snapshot, error) {
	if err := CheckAggregateType(aggType, "."); err != nil {
		return nil, err
	}
	ss, err := kv.Get[*Snapshot](ctx, s.store, snapshotKey(aggType, aggID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get snapshot %s/%s: %w", aggType, aggID, err)
	}
	return ss, nil
}

func (s *KeyValueStateStore) Save(ctx context.Context, aggType, aggID string, ss *Snapshot) error {
	if err := CheckAggregateType(aggType, "."); err != nil {
		return err
	}
	if err := kv.Put(ctx, s.store, snapshotKey(aggType, aggID), ss, kv.PutOptions{TTL: s.ttl}); err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", aggType, aggID, err)
	}
	s.log.Debug("snapshot saved", ss.LogAttrs())
	return nil
}

var _ StateStore = (*KeyValueStateStore)(nil)
