// Package transport defines the interfaces for the cache RPC. A request
// carries a shard id and an opaque, serialized common.Message.
//
// Key Components:
//
//   - IRPCClientTransport: client side, handles connections and request sending.
//
//   - IRPCServerTransport: server side, receives requests and routes them to
//     the registered ServerHandleFunc.
//
// Implementations live in the subpackages tcp, unix and http; tcp and unix
// share the framed protocol from base.
package transport
