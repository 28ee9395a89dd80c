package testing

import (
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/phantom/lib/db"
)

// RunKVDBBenchmarks runs the standard benchmarks for a KVDB implementation.
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory(time.Now))
		})
		b.Run("SetWithExpiry", func(b *testing.B) {
			benchmarkSetWithExpiry(b, factory(time.Now))
		})
		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory(time.Now))
		})
		b.Run("GetLargeValue", func(b *testing.B) {
			benchmarkGetLargeValue(b, factory(time.Now))
		})
	})
}

func benchmarkSet(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeatureSet)

	value := []byte("benchmark-value")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			database.Set(fmt.Sprintf("key-%d", i%1024), value)
			i++
		}
	})
}

func benchmarkSetWithExpiry(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeatureSetE)

	value := []byte("benchmark-value")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			database.SetE(fmt.Sprintf("key-%d", i%1024), value, 30*time.Second, 0)
			i++
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeatureGet)

	for i := 0; i < 1024; i++ {
		database.Set(fmt.Sprintf("key-%d", i), []byte("benchmark-value"))
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			database.Get(fmt.Sprintf("key-%d", i%1024))
			i++
		}
	})
}

// a compressed snapshot is usually tens of kilobytes
func benchmarkGetLargeValue(b *testing.B, database db.KVDB) {
	defer database.Close()
	requireFeature(b, database, db.FeatureGet)

	database.Set("snapshot", make([]byte, 64*1024))
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Get("snapshot")
		}
	})
}
