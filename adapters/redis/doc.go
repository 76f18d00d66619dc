// Package redis stores event logs and key-value entries in Redis.
//
// Event logs are kept as one list per aggregate; conditional appends use
// WATCH/MULTI so concurrent writers to one aggregate conflict instead of
// interleaving.
package redis
