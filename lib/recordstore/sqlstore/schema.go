package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ValentinKolb/phantom/lib/recordstore"
)

func (s *Store) InspectSchema(ctx context.Context) (recordstore.SchemaState, error) {
	rows, err := s.db.QueryContext(ctx, s.d.inspectQuery)
	if err != nil {
		return nil, fmt.Errorf("inspect schema: %w", err)
	}
	defer rows.Close()

	state := recordstore.SchemaState{}
	for rows.Next() {
		var name, code string
		if err := rows.Scan(&name, &code); err != nil {
			return nil, fmt.Errorf("inspect schema: %w", err)
		}
		state[name] = s.d.kindOf(code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect schema: %w", err)
	}
	return state, nil
}

// kind returns the kind of the object called name, or "" if there is none.
func (s *Store) kind(ctx context.Context, name string) (recordstore.ObjectKind, error) {
	var code string
	err := s.db.QueryRowContext(ctx, s.d.kindQuery, name).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("look up %q: %w", name, err)
	}
	return s.d.kindOf(code), nil
}

// CreateStructure creates the table and its indexes if they do not exist.
// Before each statement the target name is checked, because IF NOT EXISTS
// silently skips when the name is held by an object of another kind.
func (s *Store) CreateStructure(ctx context.Context, st recordstore.Structure) error {
	ddl, err := s.d.createTable(st)
	if err != nil {
		return err
	}

	tableKind, err := s.kind(ctx, st.Table)
	if err != nil {
		return err
	}
	switch tableKind {
	case recordstore.ObjectTable:
	case "":
		// a leftover id sequence would make the new table own a renamed one
		if seq := s.d.serialSequence(st.Table); seq != "" {
			seqKind, err := s.kind(ctx, seq)
			if err != nil {
				return err
			}
			if seqKind != "" {
				return &recordstore.ConflictError{Structure: st.Table, Name: seq, Kind: seqKind}
			}
		}
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return s.conflict(ctx, st, err)
		}
		Logger.Infof("created table %s", st.Table)
	default:
		return &recordstore.ConflictError{Structure: st.Table, Name: st.Table, Kind: tableKind}
	}

	for _, idx := range st.Indexes {
		idxKind, err := s.kind(ctx, idx)
		if err != nil {
			return err
		}
		switch idxKind {
		case recordstore.ObjectIndex:
			continue
		case "":
		default:
			return &recordstore.ConflictError{Structure: st.Table, Name: idx, Kind: idxKind}
		}
		if _, err := s.db.ExecContext(ctx, s.d.createIndex(st.Table, idx)); err != nil {
			return s.conflict(ctx, st, err)
		}
		Logger.Infof("created index %s on %s", idx, st.Table)
	}
	return nil
}

// conflict turns a driver level "already exists" error into a
// *recordstore.ConflictError. Other errors are wrapped unchanged.
func (s *Store) conflict(ctx context.Context, st recordstore.Structure, err error) error {
	name, ok := s.d.conflictName(err)
	if !ok {
		return fmt.Errorf("create %s: %w", st.Table, err)
	}
	kind, kErr := s.kind(ctx, name)
	if kErr != nil || kind == "" {
		kind = recordstore.ObjectUnknown
	}
	return &recordstore.ConflictError{Structure: st.Table, Name: name, Kind: kind, Err: err}
}

// DropAuxiliary drops the index or sequence named by the conflict. The kind
// is checked again right before dropping so a table is never removed.
func (s *Store) DropAuxiliary(ctx context.Context, c *recordstore.ConflictError) error {
	if c == nil || !c.Repairable() {
		return fmt.Errorf("refusing to drop non auxiliary object: %v", c)
	}

	kind, err := s.kind(ctx, c.Name)
	if err != nil {
		return err
	}
	if kind == "" {
		return nil
	}
	if kind != c.Kind {
		return fmt.Errorf("refusing to drop %q: expected %s, found %s", c.Name, c.Kind, kind)
	}

	var stmt string
	switch kind {
	case recordstore.ObjectIndex:
		stmt = "DROP INDEX IF EXISTS " + quoteIdent(c.Name)
	case recordstore.ObjectSequence:
		stmt = "DROP SEQUENCE IF EXISTS " + quoteIdent(c.Name)
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop %s %q: %w", kind, c.Name, err)
	}
	Logger.Warningf("dropped conflicting %s %s", kind, c.Name)
	return nil
}

var _ recordstore.IRecordStore = (*Store)(nil)
