package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/phantom/lib/record"
	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("recordstore")

// Config selects the backend and sizes the connection pool.
type Config struct {
	Driver          string        // "sqlite" or "postgres"
	DSN             string        // driver specific data source name
	MaxOpenConns    int           // 0 means unlimited (forced to 1 for sqlite)
	MaxIdleConns    int           // idle connections kept in the pool
	ConnMaxLifetime time.Duration // 0 means connections are reused forever
}

// Store implements recordstore.IRecordStore on top of database/sql.
type Store struct {
	db *sql.DB
	d  *dialect
}

// Open creates the connection pool. No connection is made until the first
// query, so Open succeeds even if the database is not reachable yet.
func Open(cfg Config) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("missing %s data source name", d.name)
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if d.name == "sqlite" {
		// a single writer; this also keeps ":memory:" databases alive
		maxOpen, maxIdle = 1, 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Store{db: db, d: d}, nil
}

// New wraps an existing pool.
func New(db *sql.DB, driver string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, d: d}, nil
}

func (s *Store) Dialect() string {
	return s.d.name
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// InsertMany writes the batch in one transaction. The ids assigned by the
// database are stored back into the batch records.
func (s *Store) InsertMany(ctx context.Context, batch recordstore.Batch) (err error) {
	if batch.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				Logger.Warningf("rollback failed: %v", rbErr)
			}
		}
	}()

	if o := batch.Object; o != nil {
		err = s.insert(ctx, tx, record.KindObject, &o.ID,
			[]string{"session_id", "type", "position", "rotation"},
			o.SessionID, o.Type, o.Position, o.Rotation)
		if err != nil {
			return err
		}
	}
	if m := batch.Message; m != nil {
		err = s.insert(ctx, tx, record.KindMessage, &m.ID,
			[]string{"session_id", "position", "part1", "part2", "part3"},
			m.SessionID, m.Position, m.Part1, m.Part2, m.Part3)
		if err != nil {
			return err
		}
	}
	if p := batch.Phantom; p != nil {
		data, mErr := json.Marshal(pairsOrEmpty(p.Data))
		if mErr != nil {
			return fmt.Errorf("encode phantom data: %w", mErr)
		}
		// passed as string so postgres infers jsonb instead of bytea
		err = s.insert(ctx, tx, record.KindPhantom, &p.ID,
			[]string{"session_id", "data"},
			p.SessionID, string(data))
		if err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, kind record.Kind, id *int64, cols []string, args ...any) error {
	st, _ := recordstore.StructureFor(kind)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		quoteIdent(st.Table), strings.Join(cols, ", "), s.d.params(len(args)))
	if err := tx.QueryRowContext(ctx, query, args...).Scan(id); err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func (s *Store) SelectRecentObjects(ctx context.Context, limit int) ([]record.Object, error) {
	query := fmt.Sprintf("SELECT id, session_id, type, position, rotation FROM %s ORDER BY id DESC LIMIT %s",
		quoteIdent("object_records"), s.d.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select objects: %w", err)
	}
	defer rows.Close()

	objects := make([]record.Object, 0, limit)
	for rows.Next() {
		var o record.Object
		if err := rows.Scan(&o.ID, &o.SessionID, &o.Type, &o.Position, &o.Rotation); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select objects: %w", err)
	}
	return objects, nil
}

func (s *Store) SelectRecentMessages(ctx context.Context, limit int) ([]record.Message, error) {
	query := fmt.Sprintf("SELECT id, session_id, position, part1, part2, part3 FROM %s ORDER BY id DESC LIMIT %s",
		quoteIdent("message_records"), s.d.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	messages := make([]record.Message, 0, limit)
	for rows.Next() {
		var m record.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Position, &m.Part1, &m.Part2, &m.Part3); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	return messages, nil
}

func (s *Store) SelectRandomPhantoms(ctx context.Context, limit int) ([]record.Phantom, error) {
	query := fmt.Sprintf("SELECT id, session_id, data FROM %s ORDER BY RANDOM() LIMIT %s",
		quoteIdent("phantom_records"), s.d.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select phantoms: %w", err)
	}
	defer rows.Close()

	phantoms := make([]record.Phantom, 0, limit)
	for rows.Next() {
		var (
			p    record.Phantom
			data []byte
		)
		if err := rows.Scan(&p.ID, &p.SessionID, &data); err != nil {
			return nil, fmt.Errorf("scan phantom: %w", err)
		}
		if err := json.Unmarshal(data, &p.Data); err != nil {
			return nil, fmt.Errorf("decode phantom %d data: %w", p.ID, err)
		}
		p.Data = pairsOrEmpty(p.Data)
		phantoms = append(phantoms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select phantoms: %w", err)
	}
	return phantoms, nil
}

// Count returns the number of rows of the given kind.
func (s *Store) Count(ctx context.Context, kind record.Kind) (int, error) {
	st, ok := recordstore.StructureFor(kind)
	if !ok {
		return 0, fmt.Errorf("unknown record kind %q", kind)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(st.Table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

func pairsOrEmpty(p []record.Pair) []record.Pair {
	if p == nil {
		return []record.Pair{}
	}
	return p
}
