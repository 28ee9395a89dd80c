package maple

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/phantom/lib/db"
	"github.com/ValentinKolb/phantom/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/phantom/lib/db/util"
)

const (
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements db.KVDB with sharded xsync maps
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	clock     db.Clock

	// garbage collection
	gcInterval  time.Duration
	gcIsRunning atomic.Bool
	gcStop      chan struct{}
	gcDone      sync.WaitGroup
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = number of CPUs)
	GCInterval time.Duration // Time between GC runs (0 = default)
	Clock      db.Clock      // Time source (nil = time.Now)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
		Clock:      time.Now,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.KVDB {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	if opts.NumShards <= 0 {
		opts.NumShards = defaults.NumShards
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaults.GCInterval
	}
	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}

	hasher := createIdentityHasher()
	shards := make([]*internal.Shard, opts.NumShards)
	for i := range shards {
		shards[i] = internal.NewShard(hasher)
	}

	newDB := &mapleImpl{
		numShards:  opts.NumShards,
		seed:       util.GenerateSeed(),
		shards:     shards,
		clock:      opts.Clock,
		gcInterval: opts.GCInterval,
		gcStop:     make(chan struct{}),
	}

	newDB.startGC()

	return newDB
}

// --------------------------------------------------------------------------
// Hash Helper Functions
// --------------------------------------------------------------------------

// StringToUint64 converts a string to a util.UintKey with the instance seed
func (maple *mapleImpl) StringToUint64(s string) util.UintKey {
	return util.HashString(s, maple.seed)
}

// createIdentityHasher creates a hash function that combines a key with a seed
func createIdentityHasher() func(util.UintKey, uint64) uint64 {
	return func(key util.UintKey, mapSeed uint64) uint64 {
		return uint64(key) ^ mapSeed
	}
}

func (maple *mapleImpl) now() int64 {
	return maple.clock().UnixNano()
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry without expiry.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte) {
	maple.compute(key, value, 0, 0, func(new, _ internal.Entry, _ bool) internal.Entry {
		return new
	})
}

// SetE stores a value with an expiry and a deletion delay relative to now.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetE(key string, value []byte, expireIn, deleteIn time.Duration) {
	maple.compute(key, value, expireIn, deleteIn, func(new, _ internal.Entry, _ bool) internal.Entry {
		return new
	})
}

// SetEIfUnset behaves like SetE unless a not deleted entry exists for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetEIfUnset(key string, value []byte, expireIn, deleteIn time.Duration) {
	maple.compute(key, value, expireIn, deleteIn, func(new, old internal.Entry, loaded bool) internal.Entry {
		if loaded {
			return old
		}
		return new
	})
}

// compute is the shared write path of Set, SetE and SetEIfUnset.
// fn receives the candidate entry and the current one (loaded is false when
// there is none or it is logically deleted) and returns the entry to store.
func (maple *mapleImpl) compute(key string, value []byte, expireIn, deleteIn time.Duration, fn func(new, old internal.Entry, loaded bool) internal.Entry) {
	now := maple.now()
	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	// Copy value to prevent memory corruption
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	candidate := internal.Entry{Value: valueCopy}
	if expireIn > 0 {
		candidate.ExpireAt = now + int64(expireIn)
	}
	if deleteIn > 0 {
		candidate.DeleteAt = now + int64(deleteIn)
	}

	stored, _ := shard.Data.Compute(intKey, func(old internal.Entry, exists bool) (internal.Entry, bool) {
		loaded := exists
		if exists {
			isExpired, isDeleted := old.TTLInfo(now)
			loaded = !isDeleted
			if isExpired {
				old.Value = nil
			}
		}
		return fn(candidate, old, loaded), false
	})

	shard.Schedule(intKey, stored)
}

// Expire drops the value of key immediately; Has() still finds the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Expire(key string) {
	now := maple.now()
	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	shard.Data.Compute(intKey, func(old internal.Entry, exists bool) (internal.Entry, bool) {
		if !exists {
			return old, true
		}
		if _, isDeleted := old.TTLInfo(now); isDeleted {
			return old, true
		}
		old.Value = nil
		old.ExpireAt = now
		return old, false
	})
}

// Delete removes key and its value immediately.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string) {
	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	shard.Data.Delete(intKey)
	shard.Unschedule(intKey)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the live value for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	e, ok := shard.Data.Load(intKey)
	if !ok {
		return nil, false
	}
	if isExpired, _ := e.TTLInfo(maple.now()); isExpired {
		return nil, false
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true
}

// Has reports whether key exists, even if its value has expired.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) bool {
	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	e, ok := shard.Data.Load(intKey)
	if !ok {
		return false
	}
	_, isDeleted := e.TTLInfo(maple.now())
	return !isDeleted
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the garbage collector unless it is already running
func (maple *mapleImpl) startGC() {
	if maple.gcIsRunning.CompareAndSwap(false, true) {
		maple.gcDone.Add(1)
		go maple.garbageCollector()
	}
}

// stopGC stops the garbage collector and waits for it to exit.
// The gc can't be started again after it has been stopped.
func (maple *mapleImpl) stopGC() {
	if maple.gcIsRunning.CompareAndSwap(true, false) {
		close(maple.gcStop)
		maple.gcDone.Wait()
	}
}

// garbageCollector collects every shard once per gcInterval
func (maple *mapleImpl) garbageCollector() {
	defer maple.gcDone.Done()

	ticker := time.NewTicker(maple.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-maple.gcStop:
			return
		case <-ticker.C:
			now := maple.now()
			for _, shard := range maple.shards {
				shard.Collect(now)
			}
		}
	}
}

// --------------------------------------------------------------------------
// Info, Features and Lifecycle
// --------------------------------------------------------------------------

// shardInfo is the per-shard part of GetInfo's metadata
type shardInfo struct {
	Entries int `json:"entries"`
	Expired int `json:"expired"`
}

// GetInfo returns entry counts and the summed size of live values
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	now := maple.now()
	info := db.DatabaseInfo{
		DbType: db.ImplMaple,
	}

	shards := make([]shardInfo, len(maple.shards))
	for i, shard := range maple.shards {
		shard.Data.Range(func(_ util.UintKey, e internal.Entry) bool {
			isExpired, isDeleted := e.TTLInfo(now)
			if isDeleted {
				return true
			}
			shards[i].Entries++
			if isExpired {
				shards[i].Expired++
				return true
			}
			info.SizeBytes += len(e.Value)
			return true
		})
		info.Entries += shards[i].Entries
	}
	info.Metadata = shards

	for f := db.FeatureSet; f <= db.FeatureGarbageCollect; f <<= 1 {
		if maple.SupportsFeature(f) {
			info.SupportedFeatures = append(info.SupportedFeatures, f)
		}
	}
	return info
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureSetE |
		db.FeatureSetEIfUnset |
		db.FeatureGet |
		db.FeatureExpire |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureGarbageCollect
	return supportedFeatures&feature == feature
}

// Close stops the garbage collector
func (maple *mapleImpl) Close() error {
	maple.stopGC()
	return nil
}
