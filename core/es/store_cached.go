package es

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/codewandler/cqrskit/core/cache"
	"github.com/codewandler/cqrskit/core/sf"
)

// CachedStateStore fronts a StateStore with a snapshot cache. Concurrent
// misses for the same aggregate share one load.
type CachedStateStore struct {
	inner   StateStore
	cache   cache.TypedCache[*Snapshot]
	loads   *sf.Group[*Snapshot]
	metrics ESMetrics
	log     *slog.Logger
	putOpts []cache.PutOption
}

func NewCachedStateStore(inner StateStore, opts ...CachedStateStoreOption) *CachedStateStore {
	options := cachedStateStoreOpts{
		log:     slog.Default(),
		metrics: NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToCachedStateStore(&options)
	}
	if options.cache == nil {
		options.cache = cache.NewLRU(cache.LRUOpts{Size: 1024})
	}
	s := &CachedStateStore{
		inner:   inner,
		cache:   cache.NewTyped[*Snapshot](options.cache),
		loads:   sf.New[*Snapshot](),
		metrics: options.metrics,
		log:     options.log.With(slog.String("state_store", "cached")),
	}
	if options.ttl > 0 {
		s.putOpts = append(s.putOpts, cache.WithTTL(options.ttl))
	}
	return s
}

// cacheKey length-prefixes the type so that no two (type, id) pairs share a
// key.
func cacheKey(aggType, aggID string) string {
	return strconv.Itoa(len(aggType)) + ":" + aggType + "/" + aggID
}

func (s *CachedStateStore) Get(ctx context.Context, aggType, aggID string) (*Snapshot, error) {
	key := cacheKey(aggType, aggID)
	if ss, ok := s.cache.Get(key); ok {
		s.metrics.CacheHit(aggType)
		return ss, nil
	}
	s.metrics.CacheMiss(aggType)

	return s.loads.Do(key, func() (*Snapshot, error) {
		ss, err := s.inner.Get(ctx, aggType, aggID)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, ss, s.putOpts...)
		return ss, nil
	})
}

func (s *CachedStateStore) Save(ctx context.Context, aggType, aggID string, ss *Snapshot) error {
	key := cacheKey(aggType, aggID)
	if err := s.inner.Save(ctx, aggType, aggID, ss); err != nil {
		s.cache.Delete(key)
		return err
	}
	s.cache.Put(key, ss, s.putOpts...)
	return nil
}

// Invalidate drops the cached snapshot of one aggregate.
func (s *CachedStateStore) Invalidate(aggType, aggID string) {
	s.cache.Delete(cacheKey(aggType, aggID))
	s.log.Debug("snapshot invalidated", slog.Group("agg", slog.String("type", aggType), slog.String("id", aggID)))
}

var _ StateStore = (*CachedStateStore)(nil)
