package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/phantom/lib/record"
	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/ValentinKolb/phantom/lib/recordstore/sqlstore"
)

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(sqlstore.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	for _, st := range recordstore.Expected {
		if err := s.CreateStructure(context.Background(), st); err != nil {
			t.Fatalf("create %s: %v", st, err)
		}
	}
	return s
}

func counts(t *testing.T, s *sqlstore.Store) [3]int {
	t.Helper()
	var out [3]int
	for i, kind := range record.Kinds {
		n, err := s.Count(context.Background(), kind)
		if err != nil {
			t.Fatalf("count %s: %v", kind, err)
		}
		out[i] = n
	}
	return out
}

func validObject(session string) *record.Object {
	return &record.Object{SessionID: session, Type: 5, Position: "1.00,2.00,3.00", Rotation: "0,0,0"}
}

func validPhantom(session string) *record.Phantom {
	return &record.Phantom{SessionID: session, Data: []record.Pair{{"p1", "r1"}}}
}

func TestNewPayload(t *testing.T) {
	session := record.NewSessionID()
	message := &record.Message{SessionID: session, Position: "0,0,0", Part1: 1}

	tests := []struct {
		name    string
		object  *record.Object
		message *record.Message
		phantom *record.Phantom
		wantLoc []string // one entry per expected error
	}{
		{name: "object only", object: validObject(session), phantom: validPhantom(session)},
		{name: "message only", message: message, phantom: validPhantom(session)},
		{name: "both", object: validObject(session), message: message, phantom: validPhantom(session)},
		{name: "neither", phantom: validPhantom(session), wantLoc: []string{"body"}},
		{name: "missing phantom", object: validObject(session), wantLoc: []string{"body.phantom"}},
		{name: "nothing", wantLoc: []string{"body", "body.phantom"}},
		{
			name:    "bad vectors",
			object:  &record.Object{SessionID: session, Position: "1,2", Rotation: "a,b,c"},
			phantom: validPhantom(session),
			wantLoc: []string{"body.object.position", "body.object.rotation"},
		},
		{
			name:    "bad session",
			message: &record.Message{SessionID: "123", Position: "0,0,0"},
			phantom: validPhantom(session),
			wantLoc: []string{"body.message.session_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPayload(tt.object, tt.message, tt.phantom)
			if len(tt.wantLoc) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Phantom != tt.phantom {
					t.Fatal("payload does not carry the phantom")
				}
				return
			}
			errs, ok := record.AsValidationErrors(err)
			if !ok {
				t.Fatalf("expected validation errors, got %v", err)
			}
			if len(errs) != len(tt.wantLoc) {
				t.Fatalf("expected %d errors, got %v", len(tt.wantLoc), errs)
			}
			for i, want := range tt.wantLoc {
				if got := strings.Join(errs[i].Loc, "."); got != want {
					t.Errorf("error %d at %q, want %q", i, got, want)
				}
			}
		})
	}
}

func TestIngestWritesExactlyTheRecords(t *testing.T) {
	s := newStore(t)
	pipeline := NewPipeline(s)
	session := record.NewSessionID()

	payload, err := NewPayload(validObject(session), nil, validPhantom(session))
	if err != nil {
		t.Fatal(err)
	}
	if err := pipeline.Ingest(context.Background(), payload); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if got := counts(t, s); got != [3]int{1, 0, 1} {
		t.Fatalf("unexpected row counts %v", got)
	}
	objects, err := s.SelectRecentObjects(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	want := *payload.Object
	if objects[0] != want || want.ID == 0 {
		t.Errorf("stored object %+v, want %+v", objects[0], want)
	}
}

func TestRejectedPayloadWritesNothing(t *testing.T) {
	s := newStore(t)
	pipeline := NewPipeline(s)
	session := record.NewSessionID()

	// bypasses NewPayload; Ingest validates again
	err := pipeline.Ingest(context.Background(), Payload{Phantom: validPhantom(session)})
	if _, ok := record.AsValidationErrors(err); !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := counts(t, s); got != [3]int{0, 0, 0} {
		t.Fatalf("rejected payload wrote rows: %v", got)
	}
}

type failingStore struct {
	recordstore.IRecordStore
}

func (failingStore) InsertMany(context.Context, recordstore.Batch) error {
	return errors.New("connection reset by peer")
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	session := record.NewSessionID()
	payload, err := NewPayload(validObject(session), nil, validPhantom(session))
	if err != nil {
		t.Fatal(err)
	}
	err = NewPipeline(failingStore{}).Ingest(context.Background(), payload)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, ok := record.AsValidationErrors(err); ok {
		t.Fatal("store error must not look like a validation error")
	}
}
