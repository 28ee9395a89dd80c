// Package unix implements the framed cache RPC over Unix domain sockets,
// for a cache server running on the same host as the API instances.
//
// The server removes a stale socket file before listening and pools 64 KB
// receive buffers.
package unix
