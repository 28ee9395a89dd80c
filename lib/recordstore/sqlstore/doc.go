/*
Package sqlstore implements recordstore.IRecordStore with database/sql.

Two backends are supported:

  - sqlite through modernc.org/sqlite (pure Go, no cgo)
  - postgres through github.com/lib/pq

Example:

	s, err := sqlstore.Open(sqlstore.Config{Driver: "sqlite", DSN: "phantom.db"})
	if err != nil {
		return err
	}
	defer s.Close()

Phantom trails are stored as JSON (JSONB on postgres). On sqlite the pool is limited to a
single connection. Every call takes a context; cancelling it aborts the query and, for
InsertMany, rolls back the transaction.
*/
package sqlstore
