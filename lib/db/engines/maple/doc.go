// Package maple implements the in-memory key-value engine behind the
// snapshot cache. It provides a complete implementation of the db.KVDB
// interface.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It owns
//     the shards, runs the garbage collector and provides the public API.
//
//   - Shard: A partition of the key space. Each shard holds an xsync.MapOf with
//     the entries and two util.MapHeap priority queues, one for expiry and one
//     for deletion deadlines. The heaps are guarded by a per-shard mutex; the map
//     itself needs no external lock.
//
//   - Entry: A value plus its expiry and deletion deadline in unix nanoseconds.
//
// Sharding Strategy: string keys are hashed with a per-instance seed
// (util.HashString) and the resulting integer is shifted right by 7 bits
// before the modulo so that the higher-quality bits pick the shard.
//
// Time-based Operations: SetE takes two durations relative to the engine's
// Clock.
//  1. Expiration (expireIn): the value is dropped. Get() returns false while
//     Has() still returns true.
//  2. Deletion (deleteIn): the key is removed. Get() and Has() return false.
//
// Garbage Collection:
//
// Every write with a deadline schedules the key in the shard heaps. A single
// goroutine wakes up every GCInterval, pops all keys whose deadline has
// passed and re-checks each of them against the map before it frees the
// value or removes the entry, since the key may have been rewritten in the
// meantime. Get() and Has() evaluate deadlines themselves, so callers never
// observe an entry that is past its deadline but not yet collected.
//
// Example usage:
//
//	kv := maple.NewMapleDB(&maple.DBOptions{NumShards: 4})
//	defer kv.Close()
//
//	kv.SetE("snapshot:v1:gzip", blob, 30*time.Second, 0)
//	if data, ok := kv.Get("snapshot:v1:gzip"); ok {
//	    ...
//	}
package maple
