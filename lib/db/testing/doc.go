// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - RunKVDBTests: a conformance suite for the KVDB interface contract
//   - RunKVDBBenchmarks: throughput benchmarks for the cache access pattern
//   - FakeClock: a manually advanced db.Clock so expiry is tested without sleeping
//
// Example usage:
//
//	factory := func(clock db.Clock) db.KVDB {
//		return NewMyDatabase(clock)
//	}
//
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
