package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/phantom/lib/db"
)

// DBFactory creates a new KVDB instance that measures time with clock
type DBFactory func(clock db.Clock) db.KVDB

// FakeClock is a manually advanced db.Clock for expiry tests
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock that starts at a fixed point in time
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time; pass c.Now wherever a db.Clock is expected
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(time.Now))
		})

		t.Run("Expire", func(t *testing.T) {
			testExpire(t, factory(time.Now))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(time.Now))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory(time.Now))
		})

		t.Run("SetEIfUnset", func(t *testing.T) {
			clock := NewFakeClock()
			testSetEIfUnset(t, factory(clock.Now), clock)
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			clock := NewFakeClock()
			testKeyExpiry(t, factory(clock.Now), clock)
		})

		t.Run("OverwriteResetsExpiry", func(t *testing.T) {
			clock := NewFakeClock()
			testOverwriteResetsExpiry(t, factory(clock.Now), clock)
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			clock := NewFakeClock()
			testManyExpiringKeys(t, factory(clock.Now), clock)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(time.Now))
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory(time.Now))
		})

		t.Run("ConcurrentUsage", func(t *testing.T) {
			testConcurrentUsage(t, factory(time.Now))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'
	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("mutable")
	database.Set("copy-key", input)
	input[0] = 'X'
	stored, _ := database.Get("copy-key")
	if !bytes.Equal(stored, []byte("mutable")) {
		t.Errorf("Set should store a copy of the value, got %s", stored)
	}
}

func testKeyExpiry(t *testing.T, database db.KVDB, clock *FakeClock) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureHas)

	testKey := "expiring-key"
	testValue := []byte("expiring-value")

	database.SetE(testKey, testValue, 10*time.Second, 20*time.Second)

	clock.Advance(9 * time.Second)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Key should still exist after 9s (get)")
	}
	if !bytes.Equal(result, testValue) {
		t.Errorf("Expected value %s, got %s", testValue, result)
	}
	if !database.Has(testKey) {
		t.Errorf("Key should still exist after 9s (has)")
	}

	clock.Advance(time.Second)

	if _, exists = database.Get(testKey); exists {
		t.Errorf("Key should have expired after 10s (get)")
	}
	if !database.Has(testKey) {
		t.Errorf("Key should still exist after 10s (has)")
	}

	clock.Advance(10 * time.Second)

	if _, exists = database.Get(testKey); exists {
		t.Errorf("Key should have been deleted after 20s (get)")
	}
	if database.Has(testKey) {
		t.Errorf("Key should not exist after 20s (has)")
	}

	testKey2 := "test-key2"
	testValue2 := []byte("test-value2")

	database.SetE(testKey2, testValue2, 0, 10*time.Second)

	clock.Advance(9 * time.Second)

	result, exists = database.Get(testKey2)
	if !exists {
		t.Errorf("Key should still exist after 9s")
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	clock.Advance(time.Second)

	if _, exists = database.Get(testKey2); exists {
		t.Errorf("Key should have been deleted after 10s")
	}
	if database.Has(testKey2) {
		t.Errorf("Key should not exist after 10s")
	}

	testKey3 := "not-expiring-key"
	testValue3 := []byte("not-expiring-value")

	database.SetE(testKey3, testValue3, 0, 0)

	clock.Advance(24 * time.Hour)
	result, exists = database.Get(testKey3)
	if !exists {
		t.Errorf("Key with TTL=0 should never expire")
	}
	if !bytes.Equal(result, testValue3) {
		t.Errorf("Expected value %s, got %s", testValue3, result)
	}
}

func testOverwriteResetsExpiry(t *testing.T, database db.KVDB, clock *FakeClock) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE)
	requireFeature(t, database, db.FeatureGet)

	database.SetE("key", []byte("old"), 30*time.Second, 0)
	clock.Advance(29 * time.Second)
	database.SetE("key", []byte("new"), 30*time.Second, 0)
	clock.Advance(29 * time.Second)

	result, exists := database.Get("key")
	if !exists || !bytes.Equal(result, []byte("new")) {
		t.Errorf("Expected rewritten key to live for another 30s, got %s (exists=%v)", result, exists)
	}

	database.Set("key", []byte("forever"))
	clock.Advance(time.Hour)
	if _, exists = database.Get("key"); !exists {
		t.Errorf("Expected Set without expiry to clear the previous deadline")
	}
}

func testManyExpiringKeys(t *testing.T, database db.KVDB, clock *FakeClock) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE)
	requireFeature(t, database, db.FeatureGet)

	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		value := []byte(fmt.Sprintf("expire-value-%d", i))
		ttl := time.Duration(i%100) * time.Second
		database.SetE(key, value, ttl, 0)

		if !database.Has(key) {
			t.Errorf("Key %s not found after Set", key)
		}
	}

	for offset := 0; offset <= 100; offset += 10 {
		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("expire-key-%d", i)
			ttl := i % 100

			_, exists := database.Get(key)
			expired := ttl > 0 && ttl <= offset
			if exists == expired {
				t.Errorf("Key %s at +%ds (TTL=%ds): exists=%v", key, offset, ttl, exists)
			}
		}
		clock.Advance(10 * time.Second)
	}
}

func testExpire(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureExpire)

	testKey := "expire-test-key"
	testValue := []byte("expire-test-value")

	database.Set(testKey, testValue)

	if _, exists := database.Get(testKey); !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	database.Expire(testKey)

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after Expire", testKey)
	}
	if !database.Has(testKey) {
		t.Errorf("Expected key %s to exist after Expire", testKey)
	}

	database.Expire("nonexistent-key")
	if database.Has("nonexistent-key") {
		t.Errorf("Expire should not create missing keys")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	testKey := "delete-test-key"
	testValue := []byte("delete-test-value")

	database.Set(testKey, testValue)

	if _, exists := database.Get(testKey); !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	database.Delete(testKey)

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}
	if database.Has(testKey) {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	database.Delete("nonexistent-key")
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureExpire)
	requireFeature(t, database, db.FeatureHas)

	testKey := "has-exists-test-key"
	testValue := []byte("has-exists-test-value")

	if database.Has(testKey) {
		t.Errorf("Expected Has to return false for nonexistent key")
	}

	database.Set(testKey, testValue)

	if !database.Has(testKey) {
		t.Errorf("Expected Has to return true after Set")
	}

	database.Expire(testKey)

	if !database.Has(testKey) {
		t.Errorf("Expected Has to return true after Expire")
	}
}

func testSetEIfUnset(t *testing.T, database db.KVDB, clock *FakeClock) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetEIfUnset)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value")
	testValue2 := []byte("test-value2")

	database.SetEIfUnset(testKey, testValue1, 10*time.Second, 0)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.SetEIfUnset(testKey, testValue2, 20*time.Second, 0)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	clock.Advance(10 * time.Second)
	if _, exists = database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after ttl expired", testKey)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	emptyKey := ""
	emptyKeyValue := []byte("value for empty key")

	database.Set(emptyKey, emptyKeyValue)

	result, exists := database.Get(emptyKey)
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	nilValueKey := "nil-value-key"

	database.Set(nilValueKey, nil)

	result, exists = database.Get(nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	largeValueKey := "large-value-key"
	largeValue := make([]byte, 8*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}

	database.Set(largeValueKey, largeValue)

	result, exists = database.Get(largeValueKey)
	if !exists {
		t.Errorf("Key for large value not found after Set")
	} else if !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch: got %d bytes, want %d", len(result), len(largeValue))
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists := database.Get(key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		database.Delete(fmt.Sprintf("%s%d", prefix, i))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := database.Get(key)

		if i%2 == 0 && exists {
			t.Errorf("Key %s should be deleted", key)
		}
		if i%2 == 1 && !exists {
			t.Errorf("Key %s should still exist", key)
		}
	}
}

// testConcurrentUsage mimics the cache access pattern: many readers of a
// hot key while writers replace it with expiring values.
func testConcurrentUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE)
	requireFeature(t, database, db.FeatureGet)

	const (
		hotKey     = "snapshot"
		numWorkers = 8
		numOps     = 2_000
	)

	valid := make(map[string]bool)
	for w := 0; w < numWorkers; w++ {
		valid[fmt.Sprintf("payload-%d", w)] = true
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		badReads []string
	)
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("payload-%d", workerId))

			for i := 0; i < numOps; i++ {
				if i%10 == 0 {
					database.SetE(hotKey, payload, time.Minute, 0)
					continue
				}
				if value, ok := database.Get(hotKey); ok && !valid[string(value)] {
					mu.Lock()
					badReads = append(badReads, string(value))
					mu.Unlock()
				}
			}
		}(w)
	}

	wg.Wait()

	for _, v := range badReads {
		t.Errorf("Read torn value %q", v)
	}
	if _, ok := database.Get(hotKey); !ok {
		t.Errorf("Expected hot key to exist after concurrent writes")
	}
}
