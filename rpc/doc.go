// Package rpc provides the remote cache used when several phantom API
// instances share one snapshot.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, configuration structures and logging.
//
//   - transport: network communication with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization (Binary, JSON, GOB).
//
//   - client: a store.IStore that forwards every call to a cache server.
//
//   - server: the cache server that serves local stores over a transport.
package rpc
