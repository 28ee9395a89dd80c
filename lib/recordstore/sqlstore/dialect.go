package sqlstore

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ValentinKolb/phantom/lib/record"
	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect holds everything that differs between the supported backends.
type dialect struct {
	name   string
	driver string

	// column types
	idColumn string
	uuidType string
	jsonType string

	placeholder func(n int) string

	// inspectQuery returns (name, kind code) rows for every relevant object.
	inspectQuery string
	// kindQuery returns the kind code of the object with the name given as
	// the first parameter.
	kindQuery string
	kindOf    func(code string) recordstore.ObjectKind

	// serialSequence returns the name of the sequence owned by the id column
	// of table, or "" when the backend has none.
	serialSequence func(table string) string

	// conflictName extracts the clashing object name from a driver error.
	conflictName func(err error) (string, bool)
}

var dialects = map[string]*dialect{
	"sqlite":   sqliteDialect,
	"postgres": postgresDialect,
}

func dialectFor(name string) (*dialect, error) {
	switch name {
	case "postgresql", "pg":
		name = "postgres"
	case "sqlite3":
		name = "sqlite"
	}
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q (use sqlite or postgres)", name)
	}
	return d, nil
}

// --------------------------------------------------------------------------
// SQLite (modernc.org/sqlite)
// --------------------------------------------------------------------------

var sqliteAlreadyThere = regexp.MustCompile(`there is already an? (\w+) named (\S+)`)

var sqliteDialect = &dialect{
	name:     "sqlite",
	driver:   "sqlite",
	idColumn: "id INTEGER PRIMARY KEY AUTOINCREMENT",
	uuidType: "TEXT",
	jsonType: "TEXT",
	placeholder: func(int) string {
		return "?"
	},
	inspectQuery: `SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'index', 'view') AND name NOT LIKE 'sqlite_%'`,
	kindQuery: `SELECT type FROM sqlite_master WHERE name = ?`,
	kindOf: func(code string) recordstore.ObjectKind {
		switch code {
		case "table":
			return recordstore.ObjectTable
		case "index":
			return recordstore.ObjectIndex
		case "view":
			return recordstore.ObjectView
		default:
			return recordstore.ObjectUnknown
		}
	},
	serialSequence: func(string) string {
		return ""
	},
	conflictName: func(err error) (string, bool) {
		m := sqliteAlreadyThere.FindStringSubmatch(err.Error())
		if m == nil {
			return "", false
		}
		return strings.Trim(m[2], `"'`), true
	},
}

// --------------------------------------------------------------------------
// PostgreSQL (github.com/lib/pq)
// --------------------------------------------------------------------------

// pqDuplicateTable is raised for any relation name clash, whatever the kind
// of the existing relation.
const pqDuplicateTable = "42P07"

var pqRelationName = regexp.MustCompile(`relation "([^"]+)" already exists`)

var postgresDialect = &dialect{
	name:     "postgres",
	driver:   "postgres",
	idColumn: "id BIGSERIAL PRIMARY KEY",
	uuidType: "UUID",
	jsonType: "JSONB",
	placeholder: func(n int) string {
		return "$" + strconv.Itoa(n)
	},
	inspectQuery: `SELECT c.relname, c.relkind::text FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema() AND c.relkind IN ('r', 'p', 'i', 'S', 'v', 'm')`,
	kindQuery: `SELECT c.relkind::text FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema() AND c.relname = $1`,
	kindOf: func(code string) recordstore.ObjectKind {
		switch code {
		case "r", "p":
			return recordstore.ObjectTable
		case "i":
			return recordstore.ObjectIndex
		case "S":
			return recordstore.ObjectSequence
		case "v", "m":
			return recordstore.ObjectView
		default:
			return recordstore.ObjectUnknown
		}
	},
	serialSequence: func(table string) string {
		return table + "_id_seq"
	},
	conflictName: func(err error) (string, bool) {
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) || pqErr.Code != pqDuplicateTable {
			return "", false
		}
		m := pqRelationName.FindStringSubmatch(pqErr.Message)
		if m == nil {
			return "", false
		}
		return m[1], true
	},
}

// --------------------------------------------------------------------------
// DDL
// --------------------------------------------------------------------------

func (d *dialect) columns(kind record.Kind) []string {
	switch kind {
	case record.KindObject:
		return []string{
			d.idColumn,
			"session_id " + d.uuidType + " NOT NULL",
			"type INTEGER NOT NULL",
			"position TEXT NOT NULL",
			"rotation TEXT NOT NULL",
		}
	case record.KindMessage:
		return []string{
			d.idColumn,
			"session_id " + d.uuidType + " NOT NULL",
			"position TEXT NOT NULL",
			"part1 INTEGER NOT NULL",
			"part2 INTEGER NOT NULL",
			"part3 INTEGER NOT NULL",
		}
	case record.KindPhantom:
		return []string{
			d.idColumn,
			"session_id " + d.uuidType + " NOT NULL",
			"data " + d.jsonType + " NOT NULL",
		}
	}
	return nil
}

func (d *dialect) createTable(s recordstore.Structure) (string, error) {
	cols := d.columns(s.Kind)
	if cols == nil {
		return "", fmt.Errorf("unknown record kind %q", s.Kind)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteIdent(s.Table), strings.Join(cols, ",\n\t")), nil
}

func (d *dialect) createIndex(table, index string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (session_id)",
		quoteIdent(index), quoteIdent(table))
}

// params returns "p1, p2, ..., pn" for n parameters.
func (d *dialect) params(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
