package maple

import (
	"testing"
	"time"

	"github.com/ValentinKolb/phantom/lib/db"
	dbtesting "github.com/ValentinKolb/phantom/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func(clock db.Clock) db.KVDB {
		return NewMapleDB(&DBOptions{Clock: clock, GCInterval: 5 * time.Millisecond})
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MapleDB", func(clock db.Clock) db.KVDB {
		return NewMapleDB(&DBOptions{Clock: clock})
	})
}

func TestGarbageCollectorRemovesDeletedEntries(t *testing.T) {
	clock := dbtesting.NewFakeClock()
	kv := NewMapleDB(&DBOptions{NumShards: 2, GCInterval: 2 * time.Millisecond, Clock: clock.Now})
	defer kv.Close()

	for i := 0; i < 50; i++ {
		kv.SetE(string(rune('a'+i%26))+string(rune('0'+i/26)), []byte("v"), 0, time.Second)
	}
	kv.Set("keep", []byte("v"))

	if n := kv.GetInfo().Entries; n != 51 {
		t.Fatalf("Expected 51 entries before collection, got %d", n)
	}

	clock.Advance(2 * time.Second)

	m := kv.(*mapleImpl)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		remaining := 0
		for _, shard := range m.shards {
			remaining += shard.Data.Size()
		}
		if remaining == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected the collector to remove all deleted entries")
}

func TestGetInfoSkipsExpiredValues(t *testing.T) {
	clock := dbtesting.NewFakeClock()
	kv := NewMapleDB(&DBOptions{Clock: clock.Now})
	defer kv.Close()

	kv.SetE("short", []byte("12345"), time.Second, 0)
	kv.Set("long", []byte("123"))

	info := kv.GetInfo()
	if info.Entries != 2 || info.SizeBytes != 8 {
		t.Fatalf("Expected 2 entries with 8 bytes, got %d entries with %d bytes", info.Entries, info.SizeBytes)
	}

	clock.Advance(time.Second)

	info = kv.GetInfo()
	if info.Entries != 2 || info.SizeBytes != 3 {
		t.Fatalf("Expected 2 entries with 3 bytes after expiry, got %d entries with %d bytes", info.Entries, info.SizeBytes)
	}
	if info.DbType != db.ImplMaple {
		t.Errorf("Expected db type %q, got %q", db.ImplMaple, info.DbType)
	}
	if len(info.SupportedFeatures) != 8 {
		t.Errorf("Expected 8 supported features, got %v", info.SupportedFeatures)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	kv := NewMapleDB(nil)
	if err := kv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
