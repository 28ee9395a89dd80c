// Package db defines the KVDB interface for the in-memory engines that back
// the snapshot cache.
//
// The interface is deliberately small: values are opaque byte slices, every
// write may carry an expiry and a deletion delay, and reads never see an entry
// whose value has expired, even if garbage collection has not yet reclaimed it.
//
// Time:
//   - Expiry is wall-clock based. Each engine is constructed with a Clock
//     (defaults to time.Now) that is consulted on every read and write.
//   - expireIn removes the value but keeps the key visible to Has().
//     deleteIn removes the key entirely. A zero duration disables the
//     respective mechanism; expireIn=0 with deleteIn=N behaves like
//     expireIn=N, deleteIn=N because a deleted entry is also expired.
//
// Garbage collection:
//   - Implementations must eventually reclaim expired values and deleted keys.
//   - Get() must never return an expired value and Has() must never report a
//     deleted key, regardless of the collector's progress.
//
// Related packages:
//   - engines/maple: a sharded engine built on xsync maps with a per-shard
//     expiry heap.
//   - util: hashing helpers and the MapHeap priority queue used by maple.
//   - testing: a conformance suite every engine runs (RunKVDBTests).
package db
