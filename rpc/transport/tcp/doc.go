// Package tcp implements the framed cache RPC over TCP sockets on top of the
// base package. It adds dial timeouts and socket options (TCP_NODELAY,
// keep-alive, linger and buffer sizes) taken from the client and server
// configuration.
//
// The server pools 512 KB receive buffers, large enough for a typical
// compressed snapshot in a single read.
package tcp
