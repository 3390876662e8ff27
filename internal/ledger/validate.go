package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

// ErrNoInvoices is returned when an export is asked for without any invoice
var ErrNoInvoices = errors.New("no invoices provided")

// Candidate is one invoice offered for export
type Candidate struct {
	Filename string
	Fields   *invoice.Fields
}

func (c Candidate) label(i int) string {
	if c.Filename != "" {
		return c.Filename
	}
	return fmt.Sprintf("invoice %d", i+1)
}

// ValidationError lists the invoices that block an export
type ValidationError struct {
	Filenames []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invoices with missing date or total: %s", strings.Join(e.Filenames, ", "))
}

// Validate checks that every candidate has a date and a non-zero total. Nothing
// may be exported unless the whole batch passes.
func Validate(candidates []Candidate) error {
	if len(candidates) == 0 {
		return ErrNoInvoices
	}

	var invalid []string
	for i, c := range candidates {
		if !complete(c.Fields) {
			invalid = append(invalid, c.label(i))
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Filenames: invalid}
	}
	return nil
}

func complete(f *invoice.Fields) bool {
	if f == nil || f.Fecha == nil || strings.TrimSpace(*f.Fecha) == "" {
		return false
	}
	return f.Total != nil && !invoice.Round2(*f.Total).IsZero()
}
