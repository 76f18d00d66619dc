// Package cache provides the key-value cache used to keep recently loaded
// aggregate snapshots in memory.
//
//   - [Cache]: untyped cache storing values as any
//
//   - [TypedCache]: type-safe wrapper via [NewTyped]
//
//   - [LRU]: bounded in-memory cache with per-entry TTL, safe for concurrent use
//
//   - [Nop]: cache that never stores anything
//
//     snapshots := cache.NewTyped[*es.Snapshot](cache.NewLRU(cache.LRUOpts{Size: 1000}))
//     snapshots.Put("account/acc-1", ss, cache.WithTTL(5*time.Minute))
//
// Expired entries are evicted lazily on access.
package cache
