// Package ingest validates write requests and persists them atomically.
//
// A payload carries an optional object, an optional message and a mandatory phantom. At least
// one of object and message must be present. All present records are inserted in one
// transaction. The snapshot cache is deliberately left alone, so new records become visible
// to readers once the cached snapshot expires.
package ingest
