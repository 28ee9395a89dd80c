// Package codec compresses snapshot blobs with gzip, zstd or snappy.
//
// Each codec has a fixed magic header; HasMagic is used to reject cached values that were
// not produced by the expected codec.
package codec
