package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-ledger/internal/invoice"
	"github.com/zombor/invoice-ledger/internal/scanning"
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config holds the optional parts of a Queue
type Config struct {
	// DispatchTimeout bounds each extraction call; zero means no deadline
	DispatchTimeout time.Duration

	// Store and Storage persist records and document bytes; both may be nil
	Store   Store
	Storage Storage
}

// Queue owns the documents in flight. Extraction is dispatched one record at a
// time in submission order, so completion order equals submission order.
type Queue struct {
	mu       sync.Mutex
	records  []*Record
	selected string
	seq      int

	scanner     scanning.Scanner
	cfg         Config
	idGenerator IDGenerator
	timeSource  TimeSource

	// dispatchMu is held for the whole of a ProcessPending drain
	dispatchMu sync.Mutex
	wake       chan struct{}

	subsMu      sync.RWMutex
	subscribers map[int]func(Event)
	nextSub     int
}

// NewQueue creates a Queue with uuid ids and the wall clock
func NewQueue(scanner scanning.Scanner, cfg Config) *Queue {
	return NewQueueWithDeps(scanner, cfg, &uuidGenerator{}, &defaultTimeSource{})
}

// NewQueueWithDeps creates a Queue with custom dependencies for testing
func NewQueueWithDeps(scanner scanning.Scanner, cfg Config, idGen IDGenerator, timeSrc TimeSource) *Queue {
	return &Queue{
		scanner:     scanner,
		cfg:         cfg,
		idGenerator: idGen,
		timeSource:  timeSrc,
		wake:        make(chan struct{}, 1),
		subscribers: make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every change and returns a function that removes it.
// Events are delivered in the order the changes were made. fn runs with the queue
// locked, so it must not block or call back into the Queue.
func (q *Queue) Subscribe(fn func(Event)) func() {
	q.subsMu.Lock()
	defer q.subsMu.Unlock()
	id := q.nextSub
	q.nextSub++
	q.subscribers[id] = fn
	return func() {
		q.subsMu.Lock()
		defer q.subsMu.Unlock()
		delete(q.subscribers, id)
	}
}

func (q *Queue) publish(events ...Event) {
	q.subsMu.RLock()
	defer q.subsMu.RUnlock()
	for _, ev := range events {
		for _, fn := range q.subscribers {
			fn(ev)
		}
	}
}

// Enqueue adds a document as a pending record and wakes the dispatcher
func (q *Queue) Enqueue(doc Document) string {
	q.mu.Lock()
	rec := q.appendLocked(doc)
	snap := rec.snapshot()
	q.publish(Event{Type: EventAdded, Record: snap})
	q.mu.Unlock()

	slog.Info("Document enqueued", "id", snap.ID, "filename", doc.Filename, "size", snap.Size)
	q.signal()
	return snap.ID
}

func (q *Queue) appendLocked(doc Document) *Record {
	now := q.timeSource.Now()
	q.seq++
	rec := &Record{
		ID:        q.idGenerator.Generate(),
		Seq:       q.seq,
		Document:  doc,
		Size:      len(doc.Data),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if q.cfg.Storage != nil {
		path, err := q.cfg.Storage.Save(rec.ID, doc.Filename, doc.Data)
		if err != nil {
			slog.Warn("Failed to store document", "id", rec.ID, "filename", doc.Filename, "error", err)
		} else {
			rec.StoragePath = path
		}
	}

	q.records = append(q.records, rec)
	q.persistLocked(rec)
	return rec
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run dispatches pending records until ctx is cancelled
func (q *Queue) Run(ctx context.Context) {
	for {
		q.ProcessPending(ctx)
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

// ProcessPending dispatches pending records one at a time, oldest first, until
// none are left. Records enqueued during the drain are picked up by it. It
// returns the number of records dispatched.
func (q *Queue) ProcessPending(ctx context.Context) int {
	q.dispatchMu.Lock()
	defer q.dispatchMu.Unlock()

	n := 0
	for ctx.Err() == nil {
		rec, ok := q.claimNext()
		if !ok {
			break
		}
		q.dispatch(ctx, rec)
		n++
	}
	return n
}

// claimNext moves the oldest pending record to processing
func (q *Queue) claimNext() (Record, bool) {
	q.mu.Lock()
	var claimed *Record
	for _, rec := range q.records {
		if rec.Status == StatusPending {
			claimed = rec
			break
		}
	}
	if claimed == nil {
		q.mu.Unlock()
		return Record{}, false
	}
	claimed.Status = StatusProcessing
	claimed.UpdatedAt = q.timeSource.Now()
	q.persistLocked(claimed)
	snap := claimed.snapshot()
	q.publish(Event{Type: EventUpdated, Record: snap})
	q.mu.Unlock()
	return snap, true
}

func (q *Queue) dispatch(ctx context.Context, rec Record) {
	if q.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.DispatchTimeout)
		defer cancel()
	}

	slog.Info("Extracting invoice", "id", rec.ID, "filename", rec.Document.Filename)
	start := time.Now()

	fields, err := q.scanner.ScanInvoice(ctx, scanning.Request{
		Filename:      rec.Document.Filename,
		ContentType:   rec.Document.ContentType,
		Data:          rec.Document.Data,
		ProviderCode:  rec.Document.ProviderCode,
		DocumentType:  rec.Document.DocumentType,
		Deductibility: rec.Document.Deductibility,
	})

	if err != nil {
		slog.Error("Failed to extract invoice",
			"id", rec.ID,
			"filename", rec.Document.Filename,
			"content_type", rec.Document.ContentType,
			"file_size", rec.Size,
			"duration", time.Since(start),
			"error", err,
		)
	} else {
		slog.Info("Invoice extracted", "id", rec.ID, "filename", rec.Document.Filename, "duration", time.Since(start))
	}
	q.complete(rec.ID, fields, err, q.cfg.DispatchTimeout)
}

// complete records the outcome of a dispatch. A record removed while its
// extraction was in flight is not brought back.
func (q *Queue) complete(id string, fields *invoice.Fields, err error, timeout time.Duration) {
	q.mu.Lock()
	_, rec := q.findLocked(id)
	if rec == nil || rec.Status != StatusProcessing {
		q.mu.Unlock()
		slog.Warn("Dropping extraction result for removed record", "id", id)
		return
	}

	rec.UpdatedAt = q.timeSource.Now()
	if err == nil {
		if fields == nil {
			fields = &invoice.Fields{}
		}
		rec.Status = StatusSucceeded
		rec.Fields = fields
		if q.selected == "" {
			q.selected = rec.ID
		}
	} else {
		rec.Status = StatusFailed
		rec.Failure, rec.Error = describeFailure(err, timeout)
		var perr *scanning.ParseError
		if errors.As(err, &perr) {
			rec.Fields = perr.Fields()
		}
	}
	q.persistLocked(rec)
	snap := rec.snapshot()
	q.publish(Event{Type: EventUpdated, Record: snap})
	q.mu.Unlock()
}

// describeFailure turns a collaborator error into a failure kind and a message for the user
func describeFailure(err error, timeout time.Duration) (Failure, string) {
	var (
		cerr *scanning.ConfigError
		herr *scanning.HTTPError
		perr *scanning.ParseError
	)
	switch {
	case errors.As(err, &cerr):
		return FailureConfiguration, fmt.Sprintf("Configuration error: %s", cerr.Error())
	case errors.Is(err, scanning.ErrNotConfigured):
		return FailureConfiguration, fmt.Sprintf("Configuration error: %s", err.Error())
	case errors.As(err, &perr):
		return FailureParse, fmt.Sprintf("The extraction result could not be read: %v", perr.Err)
	case errors.As(err, &herr):
		return FailureUpstream, fmt.Sprintf("The %s service returned status %d", herr.Service, herr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout, fmt.Sprintf("Extraction timed out after %s", timeout)
	case errors.Is(err, context.Canceled):
		return FailureInterrupted, "Extraction was interrupted"
	default:
		return FailureTransport, fmt.Sprintf("Extraction failed: %s", err.Error())
	}
}

// UpdateField overwrites one extracted field. Any record that is not processing
// can be edited; values are not validated until export.
func (q *Queue) UpdateField(id string, field invoice.Field, value string) error {
	q.mu.Lock()
	_, rec := q.findLocked(id)
	if rec == nil {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.Status == StatusProcessing {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProcessing, id)
	}

	fields := rec.Fields.Clone()
	if fields == nil {
		fields = &invoice.Fields{}
	}
	if err := fields.Set(field, value); err != nil {
		q.mu.Unlock()
		return err
	}
	rec.Fields = fields
	rec.UpdatedAt = q.timeSource.Now()
	q.persistLocked(rec)
	snap := rec.snapshot()
	q.publish(Event{Type: EventUpdated, Record: snap})
	q.mu.Unlock()
	return nil
}

// Remove deletes a record and clears the selection if it pointed at it
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	i, rec := q.findLocked(id)
	if rec == nil {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	q.records = append(q.records[:i], q.records[i+1:]...)
	if q.selected == id {
		q.selected = ""
	}
	q.forgetLocked(rec)
	snap := rec.snapshot()
	q.publish(Event{Type: EventRemoved, Record: snap})
	q.mu.Unlock()
	return nil
}

// Clear removes every record
func (q *Queue) Clear() {
	q.mu.Lock()
	removed := q.records
	q.records = nil
	q.selected = ""
	for _, rec := range removed {
		q.forgetLocked(rec)
	}
	q.publish(Event{Type: EventCleared})
	q.mu.Unlock()

	slog.Info("Queue cleared", "removed", len(removed))
}

// Resubmit replaces a failed record with a new pending record for the same
// document and returns the new id
func (q *Queue) Resubmit(id string) (string, error) {
	q.mu.Lock()
	i, rec := q.findLocked(id)
	if rec == nil {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.Status != StatusFailed {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s is %s", ErrNotFailed, id, rec.Status)
	}
	q.records = append(q.records[:i], q.records[i+1:]...)
	if q.selected == id {
		q.selected = ""
	}
	q.forgetLocked(rec)
	old := rec.snapshot()
	fresh := q.appendLocked(rec.Document).snapshot()
	q.publish(Event{Type: EventRemoved, Record: old}, Event{Type: EventAdded, Record: fresh})
	q.mu.Unlock()

	slog.Info("Document resubmitted", "old_id", id, "id", fresh.ID, "filename", fresh.Document.Filename)
	q.signal()
	return fresh.ID, nil
}

// Get returns a copy of one record
func (q *Queue) Get(id string) (Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, rec := q.findLocked(id)
	if rec == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.snapshot(), nil
}

// Records returns copies of every record in submission order
func (q *Queue) Records() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Record, 0, len(q.records))
	for _, rec := range q.records {
		out = append(out, rec.snapshot())
	}
	return out
}

// Succeeded returns copies of the records ready for export, in submission order
func (q *Queue) Succeeded() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Record, 0, len(q.records))
	for _, rec := range q.records {
		if rec.Status == StatusSucceeded {
			out = append(out, rec.snapshot())
		}
	}
	return out
}

// Select marks a record as the one being previewed
func (q *Queue) Select(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, rec := q.findLocked(id); rec == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	q.selected = id
	return nil
}

// Selection returns the record being previewed, if any
func (q *Queue) Selection() (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.selected == "" {
		return Record{}, false
	}
	_, rec := q.findLocked(q.selected)
	if rec == nil {
		return Record{}, false
	}
	return rec.snapshot(), true
}

func (q *Queue) findLocked(id string) (int, *Record) {
	for i, rec := range q.records {
		if rec.ID == id {
			return i, rec
		}
	}
	return -1, nil
}

func (q *Queue) persistLocked(rec *Record) {
	if q.cfg.Store == nil {
		return
	}
	if err := q.cfg.Store.SaveRecord(rec); err != nil {
		slog.Warn("Failed to persist record", "id", rec.ID, "error", err)
	}
}

func (q *Queue) forgetLocked(rec *Record) {
	if q.cfg.Store != nil {
		if err := q.cfg.Store.DeleteRecord(rec.ID); err != nil {
			slog.Warn("Failed to delete persisted record", "id", rec.ID, "error", err)
		}
	}
	if q.cfg.Storage != nil && rec.StoragePath != "" {
		if err := q.cfg.Storage.Delete(rec.StoragePath); err != nil {
			slog.Warn("Failed to delete document file", "path", rec.StoragePath, "error", err)
		}
	}
}

// Restore loads persisted records. Records that were processing when the
// process stopped move on to failed; they are never dispatched twice.
func (q *Queue) Restore() error {
	if q.cfg.Store == nil {
		return nil
	}
	stored, err := q.cfg.Store.ListRecords()
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Seq < stored[j].Seq })

	q.mu.Lock()
	for _, rec := range stored {
		if q.cfg.Storage != nil && rec.StoragePath != "" {
			data, err := q.cfg.Storage.Get(rec.StoragePath)
			if err != nil {
				slog.Warn("Failed to load document", "id", rec.ID, "path", rec.StoragePath, "error", err)
			} else {
				rec.Document.Data = data
			}
		}

		switch {
		case rec.Status == StatusProcessing:
			rec.Status = StatusFailed
			rec.Failure = FailureInterrupted
			rec.Error = "Interrupted before extraction finished"
			q.persistLocked(rec)
		case rec.Status == StatusPending && rec.Document.Data == nil:
			rec.Status = StatusFailed
			rec.Failure = FailureInterrupted
			rec.Error = "The document file is missing"
			q.persistLocked(rec)
		}

		if rec.Seq > q.seq {
			q.seq = rec.Seq
		}
		q.records = append(q.records, rec)
	}
	q.mu.Unlock()

	slog.Info("Queue restored", "records", len(stored))
	q.signal()
	return nil
}
