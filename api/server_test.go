package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/phantom/lib/codec"
	"github.com/ValentinKolb/phantom/lib/db"
	"github.com/ValentinKolb/phantom/lib/db/engines/maple"
	"github.com/ValentinKolb/phantom/lib/ingest"
	"github.com/ValentinKolb/phantom/lib/record"
	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/ValentinKolb/phantom/lib/recordstore/sqlstore"
	"github.com/ValentinKolb/phantom/lib/snapshot"
	"github.com/ValentinKolb/phantom/lib/store/lstore"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	records *sqlstore.Store
}

func newTestEnv(t *testing.T, c codec.Codec, config Config) *testEnv {
	t.Helper()
	records, err := sqlstore.Open(sqlstore.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { records.Close() })
	for _, st := range recordstore.Expected {
		if err := records.CreateStructure(context.Background(), st); err != nil {
			t.Fatal(err)
		}
	}

	backend := lstore.NewLocalStore(func() db.KVDB {
		return maple.NewMapleDB(maple.DefaultOptions())
	})
	t.Cleanup(func() { backend.(io.Closer).Close() })

	cache := snapshot.NewCache(backend, snapshot.NewBuilder(records, snapshot.DefaultBuilderConfig()), snapshot.CacheConfig{Codec: c})
	server := NewServer(config, cache, ingest.NewPipeline(records))
	server.MarkReady()
	return &testEnv{server: server, handler: server.Handler(), records: records}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func validBody() string {
	session := record.NewSessionID()
	return `{
		"object": {"session_id": "` + session + `", "type": 5, "position": "1.00,2.00,3.00", "rotation": "0,0,0"},
		"phantom": {"session_id": "` + session + `", "data": [["p1", "r1"]]}
	}`
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder, c codec.Codec) snapshot.Document {
	t.Helper()
	raw, err := codec.Decode(c, rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var doc snapshot.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

type detail struct {
	Detail []record.ValidationError `json:"detail"`
}

func TestIngestThenRead(t *testing.T) {
	env := newTestEnv(t, codec.Gzip, DefaultConfig())

	rec := env.do(http.MethodPost, "/game-data/", validBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: %d %s", rec.Code, rec.Body)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"created"}` {
		t.Errorf("unexpected body %s", rec.Body)
	}

	rec = env.do(http.MethodGet, "/game-data/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body)
	}
	h := rec.Header()
	if h.Get("Content-Encoding") != "gzip" || h.Get("Content-Type") != "application/json" || h.Get("X-Cache") != "MISS" {
		t.Errorf("unexpected headers %v", h)
	}
	doc := decodeSnapshot(t, rec, codec.Gzip)
	if len(doc.Objects) != 1 || doc.Objects[0].Type != 5 || doc.Objects[0].Position != "1.00,2.00,3.00" {
		t.Errorf("unexpected objects %+v", doc.Objects)
	}
	if len(doc.Phantoms) != 1 || doc.Phantoms[0].Data[0] != (record.Pair{"p1", "r1"}) {
		t.Errorf("unexpected phantoms %+v", doc.Phantoms)
	}

	again := env.do(http.MethodGet, "/game-data", "")
	if again.Header().Get("X-Cache") != "HIT" || again.Body.String() != rec.Body.String() {
		t.Error("second read should be served from the cache unchanged")
	}
}

func TestIngestValidation(t *testing.T) {
	env := newTestEnv(t, codec.Gzip, DefaultConfig())
	session := record.NewSessionID()

	tests := []struct {
		name    string
		body    string
		code    int
		wantLoc string
	}{
		{
			name:    "neither object nor message",
			body:    `{"phantom": {"session_id": "` + session + `", "data": []}}`,
			code:    http.StatusUnprocessableEntity,
			wantLoc: "body",
		},
		{
			name:    "bad vector",
			body:    `{"message": {"session_id": "` + session + `", "position": "1,2,x"}, "phantom": {"session_id": "` + session + `", "data": []}}`,
			code:    http.StatusUnprocessableEntity,
			wantLoc: "body.message.position",
		},
		{
			name:    "wrong type",
			body:    `{"object": {"type": "five"}}`,
			code:    http.StatusUnprocessableEntity,
			wantLoc: "body.object.type",
		},
		{
			name:    "bad pair",
			body:    `{"message": {}, "phantom": {"data": [["only one"]]}}`,
			code:    http.StatusUnprocessableEntity,
			wantLoc: "body",
		},
		{name: "broken json", body: `{"object": `, code: http.StatusBadRequest},
		{name: "empty body", body: ``, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/game-data/", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.code, rec.Body)
			}
			if tt.wantLoc == "" {
				return
			}
			var d detail
			if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
				t.Fatalf("body is not a validation error: %s", rec.Body)
			}
			if len(d.Detail) == 0 || strings.Join(d.Detail[0].Loc, ".") != tt.wantLoc {
				t.Errorf("unexpected detail %+v, want loc %s", d.Detail, tt.wantLoc)
			}
		})
	}

	for _, kind := range record.Kinds {
		if n, _ := env.records.Count(context.Background(), kind); n != 0 {
			t.Errorf("rejected payloads wrote %d %s rows", n, kind)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxBodyBytes = 64
	env := newTestEnv(t, codec.Gzip, config)

	rec := env.do(http.MethodPost, "/game-data/", validBody())
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d, want 413", rec.Code)
	}
}

func TestRecordStoreFailureIs500(t *testing.T) {
	env := newTestEnv(t, codec.Gzip, DefaultConfig())
	if _, err := env.records.DB().Exec(`DROP TABLE object_records`); err != nil {
		t.Fatal(err)
	}

	if rec := env.do(http.MethodGet, "/game-data/", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("get: status %d, want 500", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/game-data/", validBody()); rec.Code != http.StatusInternalServerError {
		t.Errorf("post: status %d, want 500", rec.Code)
	}
	// the service itself stays up
	if rec := env.do(http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}
}

func TestIdentityCodecHasNoContentEncoding(t *testing.T) {
	env := newTestEnv(t, codec.Identity, DefaultConfig())
	rec := env.do(http.MethodGet, "/game-data/", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Encoding") != "" {
		t.Fatalf("unexpected response %d %v", rec.Code, rec.Header())
	}
	if rec.Body.String() != `{"objects":[],"messages":[],"phantoms":[]}` {
		t.Errorf("unexpected body %s", rec.Body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, codec.Gzip, DefaultConfig())
	starting := NewServer(DefaultConfig(), nil, nil)
	rec := httptest.NewRecorder()
	starting.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("health before ready: %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"healthy"}` {
		t.Errorf("health: %d %s", rec.Code, rec.Body)
	}

	env.do(http.MethodGet, "/game-data/", "")
	rec = env.do(http.MethodGet, "/metrics", "")
	for _, want := range []string{"phantom_snapshot_rebuilds_total", `phantom_http_requests_total{method="GET",path="/game-data/",code="200"}`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("metrics miss %s", want)
		}
	}
}

func TestServeAndShutdown(t *testing.T) {
	env := newTestEnv(t, codec.Gzip, DefaultConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not come up: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.server.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after shutdown")
	}
}
