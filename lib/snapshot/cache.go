package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/phantom/lib/codec"
	"github.com/ValentinKolb/phantom/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("snapshot")

// DefaultTTL is how long a cached snapshot is served before it is rebuilt.
const DefaultTTL = 30 * time.Second

// keyPrefix is bumped whenever the document layout changes, so instances
// running different versions never read each other's blobs.
const keyPrefix = "snapshot:v1:"

// CacheConfig configures the cache-aside layer.
type CacheConfig struct {
	TTL   time.Duration
	Codec codec.Codec
}

// Blob is a compressed, ready to send snapshot.
type Blob struct {
	Data     []byte
	Codec    codec.Codec
	Encoding string // Content-Encoding token
	Hit      bool   // served from the cache backend
}

// Cache serves compressed snapshots from a cache backend and rebuilds them
// from the record store on a miss.
//
// There is no invalidation on write and no single-flight guard: concurrent
// misses rebuild independently and the last write wins.
type Cache struct {
	backend store.IStore
	builder *Builder
	config  CacheConfig
	key     string
}

// NewCache creates a snapshot cache. backend may be nil, in which case
// every call rebuilds the snapshot.
func NewCache(backend store.IStore, builder *Builder, config CacheConfig) *Cache {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Codec == "" {
		config.Codec = codec.Default
	}
	return &Cache{
		backend: backend,
		builder: builder,
		config:  config,
		key:     keyPrefix + string(config.Codec),
	}
}

// Key returns the fixed cache key of the snapshot.
func (c *Cache) Key() string {
	return c.key
}

// TTL returns the lifetime of a cached snapshot.
func (c *Cache) TTL() time.Duration {
	return c.config.TTL
}

// Get returns the current snapshot. Cache backend failures are logged and
// treated as a miss (on read) or skipped (on write); only a failing record
// store makes Get return an error.
func (c *Cache) Get(ctx context.Context) (Blob, error) {
	if data, ok := c.lookup(); ok {
		cacheHits.Inc()
		return c.blob(data, true), nil
	}
	cacheMisses.Inc()

	data, err := c.Rebuild(ctx)
	if err != nil {
		return Blob{}, err
	}
	c.fill(data)
	return c.blob(data, false), nil
}

// Rebuild builds, serializes and compresses a fresh snapshot without
// touching the cache backend.
func (c *Cache) Rebuild(ctx context.Context) ([]byte, error) {
	start := time.Now()
	rebuilds.Inc()

	doc, err := c.builder.Build(ctx)
	if err != nil {
		rebuildFailures.Inc()
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		rebuildFailures.Inc()
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	data, err := codec.Encode(c.config.Codec, raw)
	if err != nil {
		rebuildFailures.Inc()
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}

	rebuildDuration.UpdateDuration(start)
	snapshotSize.Update(float64(len(data)))
	Logger.Debugf("rebuilt snapshot: %d objects, %d messages, %d phantoms, %d -> %d bytes in %s",
		len(doc.Objects), len(doc.Messages), len(doc.Phantoms), len(raw), len(data), time.Since(start))
	return data, nil
}

func (c *Cache) lookup() (data []byte, ok bool) {
	if c.backend == nil {
		return nil, false
	}
	err := guard("get", func() error {
		var err error
		data, ok, err = c.backend.Get(c.key)
		return err
	})
	if err != nil {
		cacheErrors.Inc()
		Logger.Warningf("cache get %s failed, treating as miss: %v", c.key, err)
		return nil, false
	}
	if ok && !c.config.Codec.HasMagic(data) {
		cacheMalformed.Inc()
		Logger.Warningf("cache value for %s is not %s encoded (%d bytes), treating as miss", c.key, c.config.Codec, len(data))
		return nil, false
	}
	return data, ok
}

func (c *Cache) fill(data []byte) {
	if c.backend == nil {
		return
	}
	err := guard("set", func() error {
		return c.backend.SetE(c.key, data, c.config.TTL, c.config.TTL)
	})
	if err != nil {
		cacheErrors.Inc()
		Logger.Warningf("cache set %s failed, serving uncached snapshot: %v", c.key, err)
	}
}

func (c *Cache) blob(data []byte, hit bool) Blob {
	return Blob{
		Data:     data,
		Codec:    c.config.Codec,
		Encoding: c.config.Codec.ContentEncoding(),
		Hit:      hit,
	}
}

// guard turns a panic inside a backend call into an error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache %s panicked: %v", op, r)
		}
	}()
	return fn()
}
