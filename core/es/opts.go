package es

import (
	"log/slog"
	"time"

	"github.com/codewandler/cqrskit/core/cache"
)

type (
	valueOption[T any] struct{ v T }
	LogOption          valueOption[*slog.Logger]
	MetricsOption      valueOption[ESMetrics]
	TTLOption          valueOption[time.Duration]
	CacheOption        valueOption[cache.Cache]
)

func WithLog(l *slog.Logger) LogOption      { return LogOption{v: l} }
func WithMetrics(m ESMetrics) MetricsOption { return MetricsOption{v: m} }
func WithTTL(d time.Duration) TTLOption     { return TTLOption{v: d} }
func WithCache(c cache.Cache) CacheOption   { return CacheOption{v: c} }

type (
	kvStateStoreOpts struct {
		log *slog.Logger
		ttl time.Duration
	}
	KVStateStoreOption interface{ applyToKVStateStore(*kvStateStoreOpts) }

	cachedStateStoreOpts struct {
		log     *slog.Logger
		metrics ESMetrics
		ttl     time.Duration
		cache   cache.Cache
	}
	CachedStateStoreOption interface {
		applyToCachedStateStore(*cachedStateStoreOpts)
	}
)

func (o LogOption) applyToKVStateStore(opts *kvStateStoreOpts) { opts.log = o.v }
func (o TTLOption) applyToKVStateStore(opts *kvStateStoreOpts) { opts.ttl = o.v }

func (o LogOption) applyToCachedStateStore(opts *cachedStateStoreOpts)     { opts.log = o.v }
func (o MetricsOption) applyToCachedStateStore(opts *cachedStateStoreOpts) { opts.metrics = o.v }
func (o TTLOption) applyToCachedStateStore(opts *cachedStateStoreOpts)     { opts.ttl = o.v }
func (o CacheOption) applyToCachedStateStore(opts *cachedStateStoreOpts)   { opts.cache = o.v }
