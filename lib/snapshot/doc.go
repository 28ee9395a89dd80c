/*
Package snapshot builds and caches the bulk view served to polling clients.

A Builder queries the record store for the 200 most recent objects and messages and a
random sample of 20 phantoms. A Cache keeps the JSON encoded, compressed result of a build
in a store.IStore under one fixed key for a fixed TTL (30 seconds by default):

	cache := snapshot.NewCache(backend, snapshot.NewBuilder(records, snapshot.DefaultBuilderConfig()),
		snapshot.CacheConfig{Codec: codec.Gzip})
	blob, err := cache.Get(ctx)

All clients share the same blob, so the cost of a build is paid once per TTL rather than
once per request. Writes never touch the cache; readers may see data up to one TTL old.

The cache backend is optional and untrusted. Errors, panics and values without the
expected codec header count as a miss. A failed refill is logged and the fresh blob is
returned anyway. Only record store errors reach the caller.

Concurrent misses are not coalesced. Each one rebuilds, which shows up in the
phantom_snapshot_rebuilds_total counter.
*/
package snapshot
