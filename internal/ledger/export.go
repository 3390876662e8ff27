package ledger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

const (
	csvContentType   = "text/csv; charset=utf-8"
	xlsContentType   = "application/vnd.ms-excel; charset=utf-8"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	remittancePrefix = "REMESA_CONTASOL_"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Payload is a rendered export file
type Payload struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// Exporter turns validated invoices into a ledger file
type Exporter struct {
	profile    Profile
	timeSource TimeSource
}

// NewExporter creates an Exporter for the given profile
func NewExporter(profile Profile) *Exporter {
	return NewExporterWithDeps(profile, &defaultTimeSource{})
}

// NewExporterWithDeps creates an Exporter with a custom clock for testing
func NewExporterWithDeps(profile Profile, timeSrc TimeSource) *Exporter {
	return &Exporter{profile: profile, timeSource: timeSrc}
}

// WithProfile returns an Exporter sharing the clock of e with another profile
func (e *Exporter) WithProfile(profile Profile) *Exporter {
	return &Exporter{profile: profile, timeSource: e.timeSource}
}

// Profile returns the output profile of the exporter
func (e *Exporter) Profile() Profile {
	return e.profile
}

// Export validates the whole batch and renders it. On a validation failure the
// returned error is a *ValidationError and no payload is produced.
func (e *Exporter) Export(candidates []Candidate, settings invoice.Settings) (*Payload, error) {
	if err := e.profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if err := Validate(candidates); err != nil {
		return nil, err
	}

	rows := e.Rows(candidates, settings)

	var (
		body []byte
		err  error
	)
	switch e.profile.Format {
	case FormatXLSX:
		body, err = writeSpreadsheet(rows, e.profile)
	default:
		body, err = writeDelimited(rows, e.profile)
	}
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", e.profile.Format, err)
	}

	filename, contentType := e.output()
	slog.Info("Ledger exported",
		"schema", e.profile.Schema,
		"format", e.profile.Format,
		"rows", len(rows),
		"filename", filename,
	)
	return &Payload{Filename: filename, ContentType: contentType, Body: body, Rows: len(rows)}, nil
}

// Rows maps candidates to ledger rows without validating them
func (e *Exporter) Rows(candidates []Candidate, settings invoice.Settings) []Row {
	rows := make([]Row, 0, len(candidates))
	for i, c := range candidates {
		fields := c.Fields
		if fields == nil {
			fields = &invoice.Fields{}
		}
		seq := 0
		if e.profile.Sequence != SequenceOmit {
			seq = i + 1
		}
		rows = append(rows, BuildRow(fields, settings, seq))
	}
	return rows
}

func (e *Exporter) output() (string, string) {
	if e.profile.Schema == SchemaSimple {
		name := remittancePrefix + e.timeSource.Now().Format("2006-01-02")
		if e.profile.Format == FormatXLSX {
			return name + ".xlsx", xlsxContentType
		}
		return name + ".csv", csvContentType
	}
	if e.profile.Format == FormatXLSX {
		return "IVS.xlsx", xlsxContentType
	}
	return "IVS.xls", xlsContentType
}
