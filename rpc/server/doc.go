// Package server implements the phantom cache server. It serves one or more
// shards, each an independent local store (lstore over the maple engine),
// over any transport and serializer.
//
// Key Components:
//
//   - IRPCServerAdapter: translates a decoded request into store.IStore
//     calls. NewIStoreServerAdapter covers all key-value operations plus Info.
//
//   - NewRPCServer: creates a server for a common.ServerConfig. Serve blocks
//     until Close.
//
// Request timing per shard is recorded with go-metrics timers. When
// ServerConfig.StatsInterval is set, count, rate, mean and p99 latency of
// every shard are logged at that interval.
//
// Usage Example:
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	go func() {
//	  <-ctx.Done()
//	  s.Close()
//	}()
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
package server
