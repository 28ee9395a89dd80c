/*
Package schema reconciles the live database schema with the structures phantom expects.

Reconcile runs once at startup, before the HTTP listener is opened. It is additive only:
missing tables and indexes are created, nothing that exists is altered, and the only object
it ever drops is a single index or sequence whose name blocks the creation of a missing
structure. Every problem ends up in the returned Report, so a partially reconciled schema
never stops the service from starting. Operations against a missing table fail on their own
at call time.

	report := schema.Reconcile(ctx, store, recordstore.Expected)
	if !report.OK() {
		Logger.Warningf("%s", report)
	}
*/
package schema
