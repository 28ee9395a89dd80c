package recordstore

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/phantom/lib/record"
)

// Default snapshot bounds.
const (
	DefaultRecentLimit  = 200
	DefaultPhantomLimit = 20
)

// Batch is the set of records written by one ingestion. Object and Message
// are optional; every non-nil record is inserted in the same transaction.
type Batch struct {
	Object  *record.Object
	Message *record.Message
	Phantom *record.Phantom
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	n := 0
	if b.Object != nil {
		n++
	}
	if b.Message != nil {
		n++
	}
	if b.Phantom != nil {
		n++
	}
	return n
}

// IRecordStore is the narrow interface phantom uses to talk to the
// relational backend. All methods are safe for concurrent use.
type IRecordStore interface {
	// InsertMany writes every record of the batch inside one transaction.
	// Either all rows are committed or none are.
	InsertMany(ctx context.Context, batch Batch) error

	// SelectRecentObjects returns up to limit objects ordered by id descending.
	SelectRecentObjects(ctx context.Context, limit int) ([]record.Object, error)

	// SelectRecentMessages returns up to limit messages ordered by id descending.
	SelectRecentMessages(ctx context.Context, limit int) ([]record.Message, error)

	// SelectRandomPhantoms returns up to limit phantoms in random order.
	SelectRandomPhantoms(ctx context.Context, limit int) ([]record.Phantom, error)

	// InspectSchema returns the names of the tables, indexes and sequences
	// that currently exist.
	InspectSchema(ctx context.Context) (SchemaState, error)

	// CreateStructure creates the table and indexes of s. Existing parts are
	// left untouched. A name clash with an object of another kind is
	// reported as *ConflictError.
	CreateStructure(ctx context.Context, s Structure) error

	// DropAuxiliary removes the object named by a repairable conflict.
	// It refuses to drop tables.
	DropAuxiliary(ctx context.Context, conflict *ConflictError) error

	// Dialect names the SQL backend, e.g. "sqlite" or "postgres".
	Dialect() string

	// Close releases the connection pool.
	Close() error
}

// --------------------------------------------------------------------------
// Schema Types
// --------------------------------------------------------------------------

// Structure is the declarative definition of one record collection.
type Structure struct {
	Kind    record.Kind
	Table   string
	Indexes []string
}

func (s Structure) String() string {
	return s.Table
}

// Expected is the schema phantom needs, one structure per record kind.
var Expected = []Structure{
	structureFor(record.KindObject, "object_records"),
	structureFor(record.KindMessage, "message_records"),
	structureFor(record.KindPhantom, "phantom_records"),
}

func structureFor(kind record.Kind, table string) Structure {
	return Structure{Kind: kind, Table: table, Indexes: []string{table + "_session_idx"}}
}

// StructureFor returns the expected structure of the given kind.
func StructureFor(kind record.Kind) (Structure, bool) {
	for _, s := range Expected {
		if s.Kind == kind {
			return s, true
		}
	}
	return Structure{}, false
}

// SchemaState maps the name of every observed table, index and sequence to
// its kind.
type SchemaState map[string]ObjectKind

// Has reports whether an object called name exists, whatever its kind.
func (s SchemaState) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Complete reports whether the table and every index of st exist with the
// right kind. A sequence squatting on the table name does not count.
func (s SchemaState) Complete(st Structure) bool {
	if s[st.Table] != ObjectTable {
		return false
	}
	for _, idx := range st.Indexes {
		if s[idx] != ObjectIndex {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Conflicts
// --------------------------------------------------------------------------

// ObjectKind is the kind of a database object involved in a conflict.
type ObjectKind string

const (
	ObjectTable    ObjectKind = "table"
	ObjectIndex    ObjectKind = "index"
	ObjectSequence ObjectKind = "sequence"
	ObjectView     ObjectKind = "view"
	ObjectUnknown  ObjectKind = "unknown"
)

// ConflictError is returned by CreateStructure when a name the structure
// needs is already taken by an object that blocks creation.
type ConflictError struct {
	Structure string
	Name      string
	Kind      ObjectKind
	Err       error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("creating %s: %s %q already exists", e.Structure, e.Kind, e.Name)
	}
	return fmt.Sprintf("creating %s: %s %q already exists: %v", e.Structure, e.Kind, e.Name, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Repairable reports whether the conflicting object is auxiliary and may be
// dropped without losing records.
func (e *ConflictError) Repairable() bool {
	return e.Kind == ObjectIndex || e.Kind == ObjectSequence
}
