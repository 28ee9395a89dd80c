/*
Package recordstore defines the interface between phantom and its relational backend.

The store is append only: records are inserted in batches through InsertMany and read
back in bounded views (recent objects and messages, a random sample of phantoms).
Schema management is limited to the operations the startup reconciler needs:
InspectSchema, CreateStructure and DropAuxiliary.

Expected lists the structures phantom relies on. Each structure is a table plus the
auxiliary indexes on it. Auxiliary objects (indexes, and on postgres the sequence behind
the id column) may be dropped and recreated without losing data. Tables never are.

The implementation lives in the sqlstore sub-package.
*/
package recordstore
