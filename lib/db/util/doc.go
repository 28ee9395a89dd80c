// Package util provides helpers for the db.KVDB engines.
//
// The package contains:
//   - functions: seed generation and the seeded FNV-1a string hash used to
//     map string keys onto shard-local integer keys
//   - mapheap: a min-heap with key-based access that the maple garbage
//     collector uses to find entries whose deadline has passed
package util
