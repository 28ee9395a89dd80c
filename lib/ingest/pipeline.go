package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/phantom/lib/record"
	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("ingest")

var (
	ingestCreated  = metrics.GetOrCreateCounter(`phantom_ingest_requests_total{result="created"}`)
	ingestRejected = metrics.GetOrCreateCounter(`phantom_ingest_requests_total{result="rejected"}`)
	ingestFailed   = metrics.GetOrCreateCounter(`phantom_ingest_requests_total{result="failed"}`)
	ingestDuration = metrics.GetOrCreateHistogram(`phantom_ingest_duration_seconds`)
)

func recordsCounter(kind record.Kind) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`phantom_ingest_records_total{kind=%q}`, kind))
}

// Payload is one write request. Object and Message are optional but at
// least one of them must be set; Phantom is always required.
type Payload struct {
	Object  *record.Object  `json:"object,omitempty"`
	Message *record.Message `json:"message,omitempty"`
	Phantom *record.Phantom `json:"phantom"`
}

// NewPayload validates the records and bundles them into a payload. The
// returned error is a record.ValidationErrors listing every problem.
func NewPayload(object *record.Object, message *record.Message, phantom *record.Phantom) (Payload, error) {
	p := Payload{Object: object, Message: message, Phantom: phantom}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Validate checks the payload invariants. Locations are reported relative
// to the request body.
func (p Payload) Validate() error {
	var errs record.ValidationErrors
	if p.Object == nil && p.Message == nil {
		errs.Add([]string{"body"}, "either object or message must be provided")
	}
	if p.Object != nil {
		errs = append(errs, p.Object.Validate("body", "object")...)
	}
	if p.Message != nil {
		errs = append(errs, p.Message.Validate("body", "message")...)
	}
	if p.Phantom == nil {
		errs.Add([]string{"body", "phantom"}, "field required")
	} else {
		errs = append(errs, p.Phantom.Validate("body", "phantom")...)
	}
	return errs.Err()
}

// Batch returns the records of the payload as a store batch.
func (p Payload) Batch() recordstore.Batch {
	return recordstore.Batch{Object: p.Object, Message: p.Message, Phantom: p.Phantom}
}

// Pipeline writes validated payloads to the record store. It never touches
// the snapshot cache; readers pick up new records after the next expiry.
type Pipeline struct {
	store recordstore.IRecordStore
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(store recordstore.IRecordStore) *Pipeline {
	return &Pipeline{store: store}
}

// Ingest validates the payload and inserts all of its records in one
// transaction. Validation failures are returned as record.ValidationErrors
// before anything is written; store failures are wrapped.
func (p *Pipeline) Ingest(ctx context.Context, payload Payload) error {
	if err := payload.Validate(); err != nil {
		ingestRejected.Inc()
		return err
	}

	defer ingestDuration.UpdateDuration(time.Now())
	batch := payload.Batch()
	if err := p.store.InsertMany(ctx, batch); err != nil {
		ingestFailed.Inc()
		Logger.Errorf("ingest failed: %v", err)
		return fmt.Errorf("ingest: %w", err)
	}

	ingestCreated.Inc()
	if batch.Object != nil {
		recordsCounter(record.KindObject).Inc()
	}
	if batch.Message != nil {
		recordsCounter(record.KindMessage).Inc()
	}
	recordsCounter(record.KindPhantom).Inc()
	return nil
}
