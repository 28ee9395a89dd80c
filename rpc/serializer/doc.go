// Package serializer converts common.Message values to bytes and back for
// the cache RPC.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format. A flag byte marks which
//     optional fields follow, so only present fields are encoded.
//
//   - streamSerializer: wraps encoding/gob (NewGOBSerializer) or
//     encoding/json (NewJSONSerializer). JSON is human readable and handy for
//     debugging with curl against the HTTP transport; it rejects unknown
//     fields and trailing data.
//
// Snapshot blobs are arbitrary bytes (gzip, zstd or snappy frames). All three
// formats carry them unchanged: JSON base64-encodes []byte, gob and binary
// copy the raw bytes.
//
// All serializer implementations are safe for concurrent use. The stream
// serializers share a pool of encode buffers.
//
// Usage:
//
//	s, err := serializer.ByName("binary")
//	data, err := s.Serialize(message)
//	// ... send data ...
//	var receivedMsg common.Message
//	err = s.Deserialize(receivedData, &receivedMsg)
package serializer
