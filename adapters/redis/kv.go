package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/ports/kv"
)

// KVStore is a kv.Store over plain Redis strings. Per-put TTLs map to
// key expiry.
type KVStore struct {
	client redis.UniversalClient
	prefix string
}

func NewKVStore(client redis.UniversalClient, prefix string) *KVStore {
	return &KVStore{client: client, prefix: prefix}
}

func (s *KVStore) key(k string) string { return s.prefix + k }

func (s *KVStore) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), data, opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return kv.Entry{}, kv.ErrNotFound
		}
		return kv.Entry{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	var entry kv.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return kv.Entry{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return entry, nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// NewStateStore keeps snapshots in Redis.
func NewStateStore(client redis.UniversalClient, prefix string, opts ...es.KVStateStoreOption) *es.KeyValueStateStore {
	return es.NewKeyValueStateStore(NewKVStore(client, prefix), opts...)
}

var _ kv.Store = (*KVStore)(nil)
