package cache

import "time"

// Cache is an untyped key-value cache.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, val any, opts ...PutOption)
	Delete(key string)
}

type PutOptions struct {
	// TTL is the entry lifetime. Zero means no expiry.
	TTL time.Duration
}

type PutOption func(*PutOptions)

func WithTTL(ttl time.Duration) PutOption {
	return func(o *PutOptions) { o.TTL = ttl }
}

// TypedCache narrows a Cache to values of T. A stored value of another type
// reads as a miss.
type TypedCache[T any] interface {
	Get(key string) (T, bool)
	Put(key string, val T, opts ...PutOption)
	Delete(key string)
}

func NewTyped[T any](c Cache) TypedCache[T] { return typedCache[T]{c: c} }

type typedCache[T any] struct{ c Cache }

func (t typedCache[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := t.c.Get(key)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	if !ok {
		return zero, false
	}
	return out, true
}

func (t typedCache[T]) Put(key string, val T, opts ...PutOption) { t.c.Put(key, val, opts...) }
func (t typedCache[T]) Delete(key string)                        { t.c.Delete(key) }
