// Package http implements the cache RPC over plain HTTP. Every request is a
// POST to /{shardId} whose body is the serialized message; the response
// body is the serialized reply.
//
// Key Components:
//
//   - httpClientTransport: round-robin over the configured endpoints, one
//     retry loop per request, an http.Client with a per-request timeout and
//     pooled keep-alive connections. Endpoints without a scheme get http://.
//
//   - httpServerTransport: an http.Server routing POST /{shardId} to the
//     registered handler. Request logging is enabled at debug level.
//
// The HTTP transport is convenient behind load balancers and for debugging
// with the json serializer; tcp and unix are faster.
package http
