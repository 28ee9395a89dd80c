package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("schema")

// Report is the outcome of one reconciliation run.
type Report struct {
	Expected []string                // tables that should exist
	Existing []string                // tables already complete before the run
	Created  []string                // structures created (or completed) by the run
	Repaired []string                // auxiliary objects dropped to resolve a conflict
	Attempts int                     // number of CreateStructure calls
	Errors   []error                 // everything that went wrong, in order
	Duration time.Duration           // wall time of the run
	Final    recordstore.SchemaState // schema after the run, nil if it could not be inspected

	failed map[string]bool
}

// OK reports whether every expected structure exists and nothing failed.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "expected=%d existing=%d created=%d repaired=%d attempts=%d errors=%d (%s)",
		len(r.Expected), len(r.Existing), len(r.Created), len(r.Repaired), r.Attempts, len(r.Errors), r.Duration.Round(time.Millisecond))
	list := func(name string, items []string) {
		if len(items) > 0 {
			fmt.Fprintf(&b, "\n  %-9s %s", name+":", strings.Join(items, ", "))
		}
	}
	list("existing", r.Existing)
	list("created", r.Created)
	list("repaired", r.Repaired)
	for _, err := range r.Errors {
		fmt.Fprintf(&b, "\n  error:    %v", err)
	}
	return b.String()
}

// Reconcile makes sure every expected structure exists. Only missing
// structures are created. A conflict with an auxiliary object (index or
// sequence) is repaired by dropping that single object and retrying once.
//
// Reconcile never fails: problems are logged and collected in the report,
// and the caller decides whether to go on.
func Reconcile(ctx context.Context, store recordstore.IRecordStore, expected []recordstore.Structure) *Report {
	start := time.Now()
	report := &Report{failed: map[string]bool{}}

	for _, st := range expected {
		report.Expected = append(report.Expected, st.Table)
	}

	state, err := store.InspectSchema(ctx)
	if err != nil {
		// creation is idempotent, so treat everything as missing
		report.fail(fmt.Errorf("inspect schema: %w", err))
		state = recordstore.SchemaState{}
	}

	for _, st := range expected {
		if state.Complete(st) {
			report.Existing = append(report.Existing, st.Table)
			continue
		}
		report.create(ctx, store, st)
	}

	if final, err := store.InspectSchema(ctx); err == nil {
		report.Final = final
		for _, st := range expected {
			if !final.Complete(st) && !report.failed[st.Table] {
				report.fail(fmt.Errorf("structure %s still incomplete after reconciliation", st.Table))
			}
		}
	}

	report.Duration = time.Since(start)
	if report.OK() {
		Logger.Infof("schema reconciled: %s", report)
	} else {
		Logger.Warningf("schema reconciled with errors: %s", report)
	}
	return report
}

func (r *Report) create(ctx context.Context, store recordstore.IRecordStore, st recordstore.Structure) {
	defer func() {
		if p := recover(); p != nil {
			r.failOn(st, fmt.Errorf("create %s: panic: %v", st.Table, p))
		}
	}()

	r.Attempts++
	err := store.CreateStructure(ctx, st)
	if err == nil {
		r.Created = append(r.Created, st.Table)
		return
	}

	var conflict *recordstore.ConflictError
	if !errors.As(err, &conflict) || !conflict.Repairable() {
		r.failOn(st, fmt.Errorf("create %s: %w", st.Table, err))
		return
	}

	Logger.Warningf("create %s: conflicting %s %s, dropping it", st.Table, conflict.Kind, conflict.Name)
	if err := store.DropAuxiliary(ctx, conflict); err != nil {
		r.failOn(st, fmt.Errorf("repair %s: %w", st.Table, err))
		return
	}
	r.Repaired = append(r.Repaired, conflict.Name)

	r.Attempts++
	if err := store.CreateStructure(ctx, st); err != nil {
		r.failOn(st, fmt.Errorf("create %s after repair: %w", st.Table, err))
		return
	}
	r.Created = append(r.Created, st.Table)
}

func (r *Report) fail(err error) {
	Logger.Errorf("%v", err)
	r.Errors = append(r.Errors, err)
}

func (r *Report) failOn(st recordstore.Structure, err error) {
	r.failed[st.Table] = true
	r.fail(err)
}

// Missing returns the expected tables that are not complete in state.
func Missing(state recordstore.SchemaState, expected []recordstore.Structure) []string {
	var missing []string
	for _, st := range expected {
		if !state.Complete(st) {
			missing = append(missing, st.Table)
		}
	}
	sort.Strings(missing)
	return missing
}
