// Package client implements store.IStore on top of the cache RPC, so the
// snapshot cache can live in a separate phantom cache server shared by
// several API instances.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Timeout: 500 * time.Millisecond,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8081"},
//	    RetryCount:             2,
//	    ConnectionsPerEndpoint: 2,
//	  },
//	}
//
//	s, err := client.NewRPCStore(1, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  ...
//	}
//	defer s.(io.Closer).Close()
//
//	value, ok, err := s.Get("snapshot:v1:gzip")
//
// Errors returned by the server travel in Message.Err and come back as Go
// errors. The client is safe for concurrent use.
package client
