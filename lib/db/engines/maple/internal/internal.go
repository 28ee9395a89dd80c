package internal

import (
	"sync"

	"github.com/ValentinKolb/phantom/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with its expiry metadata.
// ExpireAt and DeleteAt are unix nanoseconds; zero means never.
type Entry struct {
	Value    []byte
	ExpireAt int64
	DeleteAt int64
}

// TTLInfo returns whether the entry is expired and whether the entry is deleted at the given time
func (e Entry) TTLInfo(now int64) (bool, bool) {
	var (
		isExpired = e.ExpireAt != 0 && now >= e.ExpireAt
		isDeleted = e.DeleteAt != 0 && now >= e.DeleteAt
	)

	// a deleted entry is always expired
	return isExpired || isDeleted, isDeleted
}

// HasTTL reports whether the garbage collector needs to track this entry.
func (e Entry) HasTTL() bool {
	return e.ExpireAt != 0 || e.DeleteAt != 0
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// Data is safe for concurrent use; the heaps are guarded by mu.
type Shard struct {
	Data       *xsync.MapOf[util.UintKey, Entry]
	mu         sync.Mutex
	expireHeap *util.MapHeap
	deleteHeap *util.MapHeap
}

// NewShard creates a new shard with the provided hash function
func NewShard(hasher func(util.UintKey, uint64) uint64) *Shard {
	return &Shard{
		Data:       xsync.NewMapOfWithHasher[util.UintKey, Entry](hasher),
		expireHeap: util.NewMapHeap(),
		deleteHeap: util.NewMapHeap(),
	}
}

// Schedule registers the entry's deadlines with the garbage collector.
// Calling it again for the same key replaces the previous deadlines.
func (s *Shard) Schedule(key util.UintKey, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ExpireAt != 0 {
		s.expireHeap.AddItem(uint64(key), uint64(e.ExpireAt))
	} else {
		s.expireHeap.RemoveByKey(uint64(key))
	}
	if e.DeleteAt != 0 {
		s.deleteHeap.AddItem(uint64(key), uint64(e.DeleteAt))
	} else {
		s.deleteHeap.RemoveByKey(uint64(key))
	}
}

// Unschedule removes the key from both heaps.
func (s *Shard) Unschedule(key util.UintKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireHeap.RemoveByKey(uint64(key))
	s.deleteHeap.RemoveByKey(uint64(key))
}

// Collect drops the values of expired entries and removes deleted entries.
// Every candidate is re-checked against Data because it may have been
// rewritten after it was scheduled. It returns the number of removed keys.
func (s *Shard) Collect(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.expireHeap.PopUntil(uint64(now)) {
		s.Data.Compute(util.UintKey(key), func(e Entry, loaded bool) (Entry, bool) {
			if !loaded {
				return e, true
			}
			if isExpired, _ := e.TTLInfo(now); !isExpired {
				return e, false
			}
			e.Value = nil
			return e, false
		})
	}

	removed := 0
	for _, key := range s.deleteHeap.PopUntil(uint64(now)) {
		s.Data.Compute(util.UintKey(key), func(e Entry, loaded bool) (Entry, bool) {
			if !loaded {
				return e, true
			}
			if _, isDeleted := e.TTLInfo(now); !isDeleted {
				return e, false
			}
			removed++
			return Entry{}, true
		})
		s.expireHeap.RemoveByKey(key)
	}
	return removed
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
