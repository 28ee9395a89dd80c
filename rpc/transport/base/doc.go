// Package base provides the framed protocol shared by the tcp and unix
// transports. Protocol specific behavior is injected through
// IClientConnector and IServerConnector.
//
// Frame format: 8 byte shard id, 8 byte request id, 4 byte payload length,
// payload. Responses echo the request id, so one connection carries many
// requests concurrently.
//
// Client:
//
//   - A fixed number of connection slots per endpoint, chosen round robin.
//   - Slots are dialed lazily. An endpoint that is down when the client
//     starts, or that fails later, is dialed again on a later request (at
//     most once per second per slot). Requests on a lost connection fail
//     immediately instead of waiting for their timeout.
//   - Every request has a deadline (ClientConfig.Timeout) and is retried
//     RetryCount times with exponential backoff.
//
// Server:
//
//   - One goroutine per connection reads frames; up to WorkersPerConn
//     requests of a connection run concurrently.
//   - Receive buffers are pooled with a sync.Pool.
package base
