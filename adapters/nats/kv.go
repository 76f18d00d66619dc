package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/ports/kv"
)

type KVConfig struct {
	Connect Connector    // If nil, ConnectDefault() is used.
	Log     *slog.Logger // optional
	Bucket  string       // Bucket name, required.
	// TTL is the bucket wide entry lifetime. JetStream buckets expire
	// entries per bucket, so per-put TTLs are not supported.
	TTL      time.Duration
	MaxBytes int64
	Storage  jetstream.StorageType
}

// KVStore is a kv.Store backed by a JetStream key-value bucket.
type KVStore struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
	log     *slog.Logger
}

func NewKVStore(ctx context.Context, cfg KVConfig) (*KVStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	connect := cfg.Connect
	if connect == nil {
		connect = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = 64 * 1024 * 1024
	}

	nc, closeNc, err := connect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  cfg.Storage,
		TTL:      cfg.TTL,
		MaxBytes: maxBytes,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
	}

	return &KVStore{
		kv:      bucket,
		closeNc: closeNc,
		log:     log.With(slog.String("kv", "nats"), slog.String("bucket", cfg.Bucket)),
	}, nil
}

func (k *KVStore) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	if opts.TTL > 0 {
		k.log.Debug("per-entry ttl ignored", slog.String("key", key), slog.Duration("ttl", opts.TTL))
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := k.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (k *KVStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return kv.Entry{}, kv.ErrNotFound
		}
		return kv.Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	var entry kv.Entry
	if err := json.Unmarshal(v.Value(), &entry); err != nil {
		return kv.Entry{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return entry, nil
}

func (k *KVStore) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (k *KVStore) Close() error {
	k.closeNc()
	return nil
}

// NewStateStore keeps aggregate snapshots in a JetStream bucket.
func NewStateStore(ctx context.Context, cfg KVConfig) (*es.KeyValueStateStore, *KVStore, error) {
	store, err := NewKVStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	var opts []es.KVStateStoreOption
	if cfg.Log != nil {
		opts = append(opts, es.WithLog(cfg.Log))
	}
	return es.NewKeyValueStateStore(store, opts...), store, nil
}

var _ kv.Store = (*KVStore)(nil)
