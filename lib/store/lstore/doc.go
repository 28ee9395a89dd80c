// Package lstore implements a local, in-memory key-value store based on the
// store.IStore interface. It is a thin wrapper around any db.KVDB
// implementation. Data is not persisted between process restarts.
//
// Before executing an operation the store checks whether the underlying
// db.KVDB supports it and returns a store.Error with RetCUnsupportedOperation
// otherwise.
//
// Usage Example:
//
//	factory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//
//	// Store a snapshot for 30 seconds
//	err := s.SetE("snapshot:v1:gzip", blob, 30*time.Second, 30*time.Second)
//
//	// Retrieve it
//	value, exists, err := s.Get("snapshot:v1:gzip")
package lstore
