package ingest

import (
	"errors"
	"time"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

var (
	// ErrNotFound is returned for an id the queue does not hold
	ErrNotFound = errors.New("record not found")

	// ErrProcessing is returned when a record is edited while its extraction is in flight
	ErrProcessing = errors.New("record is being processed")

	// ErrNotFailed is returned when resubmitting a record that has not failed
	ErrNotFailed = errors.New("record has not failed")
)

// Status is the position of a record in its lifecycle:
// pending -> processing -> succeeded | failed
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Failure classifies why a record failed
type Failure string

const (
	FailureConfiguration Failure = "configuration"
	FailureUpstream      Failure = "upstream"
	FailureParse         Failure = "parse"
	FailureTimeout       Failure = "timeout"
	FailureTransport     Failure = "transport"
	FailureInterrupted   Failure = "interrupted"
)

// Document is an uploaded invoice file plus the hints chosen when it was added.
// Its bytes are never modified once enqueued.
type Document struct {
	Filename      string               `json:"filename"`
	ContentType   string               `json:"content_type"`
	Data          []byte               `json:"-"`
	ProviderCode  string               `json:"provider_code,omitempty"`
	DocumentType  invoice.DocumentType `json:"document_type"`
	Deductibility invoice.Deducibility `json:"deductibility"`
}

// Record tracks one document through extraction
type Record struct {
	ID          string          `json:"id"`
	Seq         int             `json:"seq"`
	Document    Document        `json:"document"`
	Size        int             `json:"size"`
	StoragePath string          `json:"storage_path,omitempty"`
	Status      Status          `json:"status"`
	Fields      *invoice.Fields `json:"fields,omitempty"`
	Error       string          `json:"error,omitempty"`
	Failure     Failure         `json:"failure,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// snapshot copies the record so callers never share its mutable fields
func (r *Record) snapshot() Record {
	c := *r
	c.Fields = r.Fields.Clone()
	return c
}

// EventType names a change to the queue
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
	EventCleared EventType = "cleared"
)

// Event is delivered to subscribers after every change. Record is empty for EventCleared.
type Event struct {
	Type   EventType `json:"type"`
	Record Record    `json:"record"`
}
