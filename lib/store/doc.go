// Package store defines the cache backend used by the snapshot cache.
//
// Key Components:
//
//   - IStore Interface: the operations the snapshot cache needs from a backend
//     (Get and SetE with a time-to-live) plus the remaining key-value operations
//     the cache server exposes. Durations are relative to the backend's clock.
//
//   - Error System: a typed error with a RetCode, so callers can tell an
//     unsupported operation apart from an internal failure.
//
//   - DBFactory: abstracts the creation of the underlying db.KVDB.
//
// Implementations:
//
//   - Local Store (lstore): wraps a db.KVDB in the same process.
//     Available in the "github.com/ValentinKolb/phantom/lib/store/lstore" package.
//
//   - Remote Store (rpc/client): forwards every call to a phantom cache server,
//     so several API instances share one snapshot.
//     Available in the "github.com/ValentinKolb/phantom/rpc/client" package.
package store
