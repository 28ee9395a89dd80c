package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/phantom/lib/codec"
	"github.com/ValentinKolb/phantom/lib/db"
	"github.com/ValentinKolb/phantom/lib/db/engines/maple"
	dbtesting "github.com/ValentinKolb/phantom/lib/db/testing"
	"github.com/ValentinKolb/phantom/lib/record"
	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/ValentinKolb/phantom/lib/recordstore/sqlstore"
	"github.com/ValentinKolb/phantom/lib/store"
	"github.com/ValentinKolb/phantom/lib/store/lstore"
	"github.com/ValentinKolb/phantom/rpc/client"
	"github.com/ValentinKolb/phantom/rpc/common"
	"github.com/ValentinKolb/phantom/rpc/serializer"
	"github.com/ValentinKolb/phantom/rpc/transport/tcp"
)

type fixture struct {
	records *sqlstore.Store
	backend store.IStore
	clock   *dbtesting.FakeClock
	session string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	records, err := sqlstore.Open(sqlstore.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open record store: %v", err)
	}
	t.Cleanup(func() { records.Close() })
	for _, st := range recordstore.Expected {
		if err := records.CreateStructure(context.Background(), st); err != nil {
			t.Fatalf("create %s: %v", st, err)
		}
	}

	clock := dbtesting.NewFakeClock()
	backend := lstore.NewLocalStore(func() db.KVDB {
		return maple.NewMapleDB(&maple.DBOptions{NumShards: 2, GCInterval: time.Hour, Clock: clock.Now})
	})
	t.Cleanup(func() { backend.(io.Closer).Close() })

	return &fixture{records: records, backend: backend, clock: clock, session: record.NewSessionID()}
}

func (f *fixture) cache(c codec.Codec) *Cache {
	return NewCache(f.backend, NewBuilder(f.records, DefaultBuilderConfig()), CacheConfig{Codec: c})
}

func (f *fixture) insertObject(t *testing.T, typ int) *record.Object {
	t.Helper()
	o := &record.Object{SessionID: f.session, Type: typ, Position: "1.00,2.00,3.00", Rotation: "0,0,0"}
	p := &record.Phantom{SessionID: f.session, Data: []record.Pair{{"p1", "r1"}}}
	if err := f.records.InsertMany(context.Background(), recordstore.Batch{Object: o, Phantom: p}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return o
}

func decode(t *testing.T, blob Blob) *Document {
	t.Helper()
	raw, err := codec.Decode(blob.Codec, blob.Data)
	if err != nil {
		t.Fatalf("decode blob: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	return &doc
}

// --------------------------------------------------------------------------
// Builder
// --------------------------------------------------------------------------

func TestBuilderLimitsAndOrder(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.insertObject(t, i)
		m := &record.Message{SessionID: f.session, Position: "0,0,0", Part1: i}
		if err := f.records.InsertMany(context.Background(), recordstore.Batch{Message: m, Phantom: &record.Phantom{SessionID: f.session, Data: []record.Pair{}}}); err != nil {
			t.Fatal(err)
		}
	}

	b := NewBuilder(f.records, BuilderConfig{RecentLimit: 3, PhantomLimit: 2})
	doc, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(doc.Objects) != 3 || len(doc.Messages) != 3 || len(doc.Phantoms) != 2 {
		t.Fatalf("unexpected sizes %d/%d/%d", len(doc.Objects), len(doc.Messages), len(doc.Phantoms))
	}
	for i, o := range doc.Objects {
		if o.Type != 4-i {
			t.Errorf("object %d has type %d, want %d (id desc)", i, o.Type, 4-i)
		}
	}
	if doc.Messages[0].Part1 != 4 {
		t.Errorf("newest message first, got part1=%d", doc.Messages[0].Part1)
	}
}

func TestBuilderDefaults(t *testing.T) {
	b := NewBuilder(nil, BuilderConfig{})
	if b.config != DefaultBuilderConfig() || b.config.RecentLimit != 200 || b.config.PhantomLimit != 20 {
		t.Fatalf("unexpected defaults %+v", b.config)
	}
}

func TestEmptySnapshotEncodesArrays(t *testing.T) {
	f := newFixture(t)
	doc, err := NewBuilder(f.records, DefaultBuilderConfig()).Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out, _ := json.Marshal(doc)
	if string(out) != `{"objects":[],"messages":[],"phantoms":[]}` {
		t.Errorf("unexpected encoding %s", out)
	}
}

// --------------------------------------------------------------------------
// Cache
// --------------------------------------------------------------------------

func TestCacheHitIsByteIdentical(t *testing.T) {
	f := newFixture(t)
	f.insertObject(t, 1)
	c := f.cache(codec.Gzip)
	before := ReadStats()

	first, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first.Hit || !second.Hit {
		t.Fatalf("expected miss then hit, got %v then %v", first.Hit, second.Hit)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("cached snapshot differs from the one that was stored")
	}
	if first.Encoding != "gzip" {
		t.Errorf("unexpected encoding %q", first.Encoding)
	}

	d := ReadStats().Sub(before)
	if d.Rebuilds != 1 || d.Hits != 1 || d.Misses != 1 {
		t.Errorf("unexpected stats %+v", d)
	}
}

func TestCacheStalenessBound(t *testing.T) {
	f := newFixture(t)
	f.insertObject(t, 1)
	c := f.cache(codec.Gzip)
	ctx := context.Background()

	if _, err := c.Get(ctx); err != nil {
		t.Fatal(err)
	}
	f.insertObject(t, 2)

	f.clock.Advance(DefaultTTL - time.Second)
	blob, err := c.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !blob.Hit || len(decode(t, blob).Objects) != 1 {
		t.Fatal("write must not be visible before the ttl elapsed")
	}

	f.clock.Advance(time.Second)
	blob, err = c.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	doc := decode(t, blob)
	if blob.Hit || len(doc.Objects) != 2 || doc.Objects[0].Type != 2 {
		t.Fatalf("write must be visible after the ttl elapsed, got hit=%v objects=%+v", blob.Hit, doc.Objects)
	}
}

func TestCachedSnapshotMatchesDirectBuild(t *testing.T) {
	for _, cd := range codec.Codecs {
		t.Run(string(cd), func(t *testing.T) {
			f := newFixture(t)
			for i := 0; i < 10; i++ {
				f.insertObject(t, i)
			}
			c := f.cache(cd)
			if _, err := c.Get(context.Background()); err != nil {
				t.Fatal(err)
			}
			blob, err := c.Get(context.Background())
			if err != nil || !blob.Hit {
				t.Fatalf("expected cache hit, got %v, %v", blob.Hit, err)
			}
			cached := decode(t, blob)

			direct, err := NewBuilder(f.records, DefaultBuilderConfig()).Build(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			// phantoms come in random order
			byID := func(p []record.Phantom) {
				sort.Slice(p, func(i, j int) bool { return p[i].ID < p[j].ID })
			}
			byID(cached.Phantoms)
			byID(direct.Phantoms)
			if !reflect.DeepEqual(cached, direct) {
				t.Fatalf("cached snapshot differs from direct build:\n%+v\n%+v", cached, direct)
			}
		})
	}
}

func TestScenarioObjectAndPhantomAreServed(t *testing.T) {
	f := newFixture(t)
	o := f.insertObject(t, 5)

	blob, err := f.cache(codec.Gzip).Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	doc := decode(t, blob)
	want := record.Object{ID: o.ID, SessionID: f.session, Type: 5, Position: "1.00,2.00,3.00", Rotation: "0,0,0"}
	if len(doc.Objects) != 1 || doc.Objects[0] != want {
		t.Fatalf("unexpected objects %+v", doc.Objects)
	}
	if len(doc.Phantoms) != 1 || !reflect.DeepEqual(doc.Phantoms[0].Data, []record.Pair{{"p1", "r1"}}) || doc.Phantoms[0].SessionID != f.session {
		t.Fatalf("unexpected phantoms %+v", doc.Phantoms)
	}
	if len(doc.Messages) != 0 {
		t.Fatalf("unexpected messages %+v", doc.Messages)
	}
}

func TestMalformedCacheValueIsMiss(t *testing.T) {
	f := newFixture(t)
	c := f.cache(codec.Zstd)
	if err := f.backend.Set(c.Key(), []byte("definitely not zstd")); err != nil {
		t.Fatal(err)
	}
	before := ReadStats()

	blob, err := c.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if blob.Hit {
		t.Fatal("malformed value must not be served")
	}
	if d := ReadStats().Sub(before); d.Malformed != 1 {
		t.Errorf("expected one malformed value, got %+v", d)
	}
	stored, ok, _ := f.backend.Get(c.Key())
	if !ok || !bytes.Equal(stored, blob.Data) {
		t.Error("malformed value should be replaced by the fresh snapshot")
	}
}

func TestRecordStoreErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	if _, err := f.records.DB().Exec(`DROP TABLE message_records`); err != nil {
		t.Fatal(err)
	}
	c := f.cache(codec.Gzip)
	before := ReadStats()

	if _, err := c.Get(context.Background()); err == nil {
		t.Fatal("expected record store error")
	}
	if ok, _ := f.backend.Has(c.Key()); ok {
		t.Error("nothing must be cached after a failed build")
	}
	if d := ReadStats().Sub(before); d.RebuildFailures != 1 {
		t.Errorf("expected one rebuild failure, got %+v", d)
	}
}

func TestNilBackendAlwaysRebuilds(t *testing.T) {
	f := newFixture(t)
	c := NewCache(nil, NewBuilder(f.records, DefaultBuilderConfig()), CacheConfig{})
	if c.TTL() != DefaultTTL || c.Key() != "snapshot:v1:gzip" {
		t.Fatalf("unexpected defaults ttl=%s key=%s", c.TTL(), c.Key())
	}
	before := ReadStats()
	for i := 0; i < 3; i++ {
		blob, err := c.Get(context.Background())
		if err != nil || blob.Hit {
			t.Fatalf("get %d: hit=%v err=%v", i, blob.Hit, err)
		}
	}
	if d := ReadStats().Sub(before); d.Rebuilds != 3 {
		t.Errorf("expected 3 rebuilds, got %+v", d)
	}
}

func TestConcurrentMisses(t *testing.T) {
	f := newFixture(t)
	f.insertObject(t, 1)
	c := f.cache(codec.Snappy)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blob, err := c.Get(context.Background())
			if err != nil {
				errs <- err
				return
			}
			if _, err := codec.Decode(blob.Codec, blob.Data); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// --------------------------------------------------------------------------
// Failing backends
// --------------------------------------------------------------------------

// brokenStore fails (or panics on) every call.
type brokenStore struct {
	panics bool
}

var errUnreachable = errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")

func (b *brokenStore) fail() error {
	if b.panics {
		panic("nil connection")
	}
	return errUnreachable
}

func (b *brokenStore) Set(string, []byte) error { return b.fail() }
func (b *brokenStore) SetE(string, []byte, time.Duration, time.Duration) error {
	return b.fail()
}
func (b *brokenStore) SetEIfUnset(string, []byte, time.Duration, time.Duration) error {
	return b.fail()
}
func (b *brokenStore) Expire(string) error { return b.fail() }
func (b *brokenStore) Delete(string) error { return b.fail() }
func (b *brokenStore) Get(string) ([]byte, bool, error) { return nil, false, b.fail() }
func (b *brokenStore) Has(string) (bool, error) { return false, b.fail() }
func (b *brokenStore) GetDBInfo() (db.DatabaseInfo, error) {
	return db.DatabaseInfo{}, b.fail()
}

func TestBackendFailuresAreSwallowed(t *testing.T) {
	for _, panics := range []bool{false, true} {
		t.Run(fmt.Sprintf("panics=%v", panics), func(t *testing.T) {
			f := newFixture(t)
			f.insertObject(t, 1)
			c := NewCache(&brokenStore{panics: panics}, NewBuilder(f.records, DefaultBuilderConfig()), CacheConfig{})
			before := ReadStats()

			blob, err := c.Get(context.Background())
			if err != nil {
				t.Fatalf("backend failure must not fail the read: %v", err)
			}
			if blob.Hit || len(decode(t, blob).Objects) != 1 {
				t.Fatal("expected a freshly built snapshot")
			}
			if d := ReadStats().Sub(before); d.CacheErrors != 2 || d.Rebuilds != 1 {
				t.Errorf("expected get and set errors to be counted, got %+v", d)
			}
		})
	}
}

// stalledCacheServer accepts connections and reads requests but never answers
func stalledCacheServer(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
			go io.Copy(io.Discard, conn)
		}
	}()
	t.Cleanup(func() {
		l.Close()
		<-done
		for _, c := range conns {
			c.Close()
		}
	})
	return l.Addr().String()
}

func TestStalledRemoteCacheIsMiss(t *testing.T) {
	f := newFixture(t)
	f.insertObject(t, 1)

	timeout := 200 * time.Millisecond
	backend, err := client.NewRPCStore(100, common.ClientConfig{
		Timeout: timeout,
		Transport: common.ClientTransportConfig{
			Endpoints:  []string{stalledCacheServer(t)},
			RetryCount: 3,
		},
	}, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
	if err != nil {
		t.Fatalf("remote store: %v", err)
	}
	defer backend.(io.Closer).Close()

	c := NewCache(backend, NewBuilder(f.records, DefaultBuilderConfig()), CacheConfig{})
	before := ReadStats()
	start := time.Now()

	blob, err := c.Get(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("a stalled cache must not fail the read: %v", err)
	}
	if blob.Hit || len(decode(t, blob).Objects) != 1 {
		t.Fatal("expected a freshly built snapshot")
	}
	// one timed out get, one timed out set
	if elapsed > 2*timeout+500*time.Millisecond {
		t.Errorf("read took %s with a cache timeout of %s", elapsed, timeout)
	}
	if d := ReadStats().Sub(before); d.CacheErrors != 2 || d.Misses != 1 {
		t.Errorf("expected the get and set timeouts to be counted, got %+v", d)
	}
}
