// Package kv is the port for byte-oriented key-value storage. The state
// stores in core/es persist snapshots through it, so any backend that
// implements Store (memory, NATS KV, Redis) can hold aggregate state.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

type Entry struct {
	Data []byte
	Meta map[string]any
}

type PutOptions struct {
	// TTL is the entry lifetime. Zero keeps the entry until deleted.
	TTL time.Duration
}

type Store interface {
	Put(ctx context.Context, key string, entry Entry, opts PutOptions) error
	// Get returns ErrNotFound when key is absent or expired.
	Get(ctx context.Context, key string) (Entry, error)
	Delete(ctx context.Context, key string) error
}

// Key joins parts with '.', the separator accepted by every backend.
func Key(parts ...string) string { return strings.Join(parts, ".") }

func Put[T any](ctx context.Context, store Store, key string, v T, opts PutOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, Entry{Data: data}, opts)
}

func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(entry.Data, &out)
	return out, err
}
