package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/ValentinKolb/phantom/lib/record"
	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/lib/pq"
)

// newTestStore returns an empty in-memory sqlite store.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newMigratedStore returns an in-memory sqlite store with the full schema.
func newMigratedStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	for _, st := range recordstore.Expected {
		if err := s.CreateStructure(context.Background(), st); err != nil {
			t.Fatalf("create %s failed: %v", st, err)
		}
	}
	return s
}

func mustExec(t *testing.T, s *Store, stmt string) {
	t.Helper()
	if _, err := s.DB().Exec(stmt); err != nil {
		t.Fatalf("exec %q failed: %v", stmt, err)
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open(Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := Open(Config{Driver: "sqlite"}); err == nil {
		t.Error("expected error for missing dsn")
	}
	s, err := Open(Config{Driver: "sqlite3", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()
	if s.Dialect() != "sqlite" {
		t.Errorf("unexpected dialect %q", s.Dialect())
	}
	if got := s.DB().Stats().MaxOpenConnections; got != 1 {
		t.Errorf("sqlite pool should have one connection, got %d", got)
	}
}

func TestCreateStructureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)

	state, err := s.InspectSchema(ctx)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	for _, st := range recordstore.Expected {
		if !state.Complete(st) {
			t.Errorf("structure %s incomplete in %v", st, state)
		}
		if err := s.CreateStructure(ctx, st); err != nil {
			t.Errorf("second create of %s failed: %v", st, err)
		}
	}
}

func TestInsertAndSelect(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)
	session := record.NewSessionID()

	for i := 0; i < 3; i++ {
		batch := recordstore.Batch{
			Object:  &record.Object{SessionID: session, Type: i, Position: fmt.Sprintf("%d,0,0", i), Rotation: "0,0,0"},
			Message: &record.Message{SessionID: session, Position: "1,2,3", Part1: i, Part2: 2, Part3: 3},
			Phantom: &record.Phantom{SessionID: session, Data: []record.Pair{{"p1", "r1"}, {"p2", "r2"}}},
		}
		if err := s.InsertMany(ctx, batch); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
		if batch.Object.ID == 0 || batch.Message.ID == 0 || batch.Phantom.ID == 0 {
			t.Fatalf("ids not assigned: %+v", batch)
		}
	}

	objects, err := s.SelectRecentObjects(ctx, 2)
	if err != nil {
		t.Fatalf("select objects failed: %v", err)
	}
	if len(objects) != 2 || objects[0].ID <= objects[1].ID {
		t.Fatalf("expected 2 objects by id desc, got %+v", objects)
	}
	if objects[0].Type != 2 || objects[0].Position != "2,0,0" || objects[0].SessionID != session {
		t.Errorf("unexpected newest object %+v", objects[0])
	}

	messages, err := s.SelectRecentMessages(ctx, 10)
	if err != nil {
		t.Fatalf("select messages failed: %v", err)
	}
	if len(messages) != 3 || messages[0].Part1 != 2 || messages[2].Part1 != 0 {
		t.Fatalf("unexpected messages %+v", messages)
	}

	phantoms, err := s.SelectRandomPhantoms(ctx, 10)
	if err != nil {
		t.Fatalf("select phantoms failed: %v", err)
	}
	if len(phantoms) != 3 {
		t.Fatalf("expected 3 phantoms, got %d", len(phantoms))
	}
	want := []record.Pair{{"p1", "r1"}, {"p2", "r2"}}
	if !reflect.DeepEqual(phantoms[0].Data, want) {
		t.Errorf("phantom data %v, want %v", phantoms[0].Data, want)
	}
}

func TestSelectOnEmptyTables(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)

	objects, err := s.SelectRecentObjects(ctx, 200)
	if err != nil || objects == nil || len(objects) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v, %v", objects, err)
	}
	phantoms, err := s.SelectRandomPhantoms(ctx, 20)
	if err != nil || phantoms == nil || len(phantoms) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v, %v", phantoms, err)
	}
}

func TestSelectRandomPhantomsIsBounded(t *testing.T) {
	ctx := context.Background()
	s := newMigratedStore(t)
	session := record.NewSessionID()

	for i := 0; i < 30; i++ {
		p := &record.Phantom{SessionID: session, Data: []record.Pair{}}
		if err := s.InsertMany(ctx, recordstore.Batch{Phantom: p}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	phantoms, err := s.SelectRandomPhantoms(ctx, 20)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(phantoms) != 20 {
		t.Fatalf("expected 20 phantoms, got %d", len(phantoms))
	}
	seen := map[int64]bool{}
	for _, p := range phantoms {
		if seen[p.ID] {
			t.Fatalf("duplicate phantom %d", p.ID)
		}
		seen[p.ID] = true
		if p.Data == nil || len(p.Data) != 0 {
			t.Errorf("expected empty trail, got %v", p.Data)
		}
	}
}

func TestInsertManyRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	objects, _ := recordstore.StructureFor(record.KindObject)
	if err := s.CreateStructure(ctx, objects); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// phantom_records does not exist, so the second insert fails
	batch := recordstore.Batch{
		Object:  &record.Object{SessionID: record.NewSessionID(), Position: "0,0,0", Rotation: "0,0,0"},
		Phantom: &record.Phantom{SessionID: record.NewSessionID(), Data: []record.Pair{{"a", "b"}}},
	}
	if err := s.InsertMany(ctx, batch); err == nil {
		t.Fatal("expected insert to fail")
	}

	n, err := s.Count(ctx, record.KindObject)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected rollback to leave 0 objects, got %d", n)
	}
}

func TestInsertManyHonoursContext(t *testing.T) {
	s := newMigratedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := recordstore.Batch{Phantom: &record.Phantom{SessionID: record.NewSessionID(), Data: []record.Pair{}}}
	if err := s.InsertMany(ctx, batch); err == nil {
		t.Fatal("expected cancelled context to fail the insert")
	}
	if n, _ := s.Count(context.Background(), record.KindPhantom); n != 0 {
		t.Errorf("expected no rows, got %d", n)
	}
}

func TestIndexSquattingOnTableNameIsRepairable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustExec(t, s, `CREATE TABLE leftovers (x INTEGER)`)
	mustExec(t, s, `CREATE INDEX object_records ON leftovers (x)`)

	st, _ := recordstore.StructureFor(record.KindObject)
	err := s.CreateStructure(ctx, st)
	var conflict *recordstore.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.Name != "object_records" || conflict.Kind != recordstore.ObjectIndex || !conflict.Repairable() {
		t.Fatalf("unexpected conflict %+v", conflict)
	}

	if err := s.DropAuxiliary(ctx, conflict); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if err := s.CreateStructure(ctx, st); err != nil {
		t.Fatalf("create after repair failed: %v", err)
	}
	state, _ := s.InspectSchema(ctx)
	if !state.Complete(st) || !state.Has("leftovers") {
		t.Errorf("unexpected schema after repair: %v", state)
	}
}

func TestTableConflictIsNotRepairable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustExec(t, s, `CREATE TABLE message_records_session_idx (x INTEGER)`)

	st, _ := recordstore.StructureFor(record.KindMessage)
	err := s.CreateStructure(ctx, st)
	var conflict *recordstore.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.Kind != recordstore.ObjectTable || conflict.Repairable() {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
	if err := s.DropAuxiliary(ctx, conflict); err == nil {
		t.Fatal("dropping a table must be refused")
	}
	state, _ := s.InspectSchema(ctx)
	if state["message_records_session_idx"] != recordstore.ObjectTable {
		t.Errorf("table must survive, got %v", state)
	}
}

func TestDropAuxiliaryChecksKind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustExec(t, s, `CREATE TABLE squatter (x INTEGER)`)

	// the conflict claims an index but the object is a table by now
	c := &recordstore.ConflictError{Structure: "object_records", Name: "squatter", Kind: recordstore.ObjectIndex}
	if err := s.DropAuxiliary(ctx, c); err == nil {
		t.Fatal("expected kind mismatch to be refused")
	}
	// already gone is fine
	c.Name = "missing"
	if err := s.DropAuxiliary(ctx, c); err != nil {
		t.Fatalf("dropping a missing object should be a no-op: %v", err)
	}
}

func TestConflictNames(t *testing.T) {
	name, ok := sqliteDialect.conflictName(errors.New("SQL logic error: there is already an index named object_records (1)"))
	if !ok || name != "object_records" {
		t.Errorf("sqlite: got %q, %v", name, ok)
	}
	if _, ok := sqliteDialect.conflictName(errors.New("no such table: x")); ok {
		t.Error("sqlite: unrelated error matched")
	}

	pqErr := &pq.Error{Code: "42P07", Message: `relation "phantom_records_id_seq" already exists`}
	name, ok = postgresDialect.conflictName(fmt.Errorf("wrapped: %w", pqErr))
	if !ok || name != "phantom_records_id_seq" {
		t.Errorf("postgres: got %q, %v", name, ok)
	}
	if _, ok := postgresDialect.conflictName(&pq.Error{Code: "23505", Message: "duplicate key"}); ok {
		t.Error("postgres: unrelated code matched")
	}
}

func TestPostgresDDL(t *testing.T) {
	st, _ := recordstore.StructureFor(record.KindPhantom)
	ddl, err := postgresDialect.createTable(st)
	if err != nil {
		t.Fatalf("ddl failed: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"phantom_records\" (\n\tid BIGSERIAL PRIMARY KEY,\n\tsession_id UUID NOT NULL,\n\tdata JSONB NOT NULL\n)"
	if ddl != want {
		t.Errorf("unexpected ddl:\n%s", ddl)
	}
	if got := postgresDialect.params(3); got != "$1, $2, $3" {
		t.Errorf("unexpected params %q", got)
	}
	if got := postgresDialect.serialSequence("object_records"); got != "object_records_id_seq" {
		t.Errorf("unexpected sequence %q", got)
	}
}
