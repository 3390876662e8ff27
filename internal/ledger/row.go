package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

const (
	// generalBook is the VAT book every purchase invoice is booked in
	generalBook = 1

	// domesticOperation is the only operation type classified here; the schema
	// reserves 1 import, 2 intra-community and 3 agricultural
	domesticOperation = 0

	// noGoods marks the entry as not being investment goods
	noGoods = 0
)

// Row is one ledger line of the 26 column VAT book import
type Row struct {
	// Sequence is the 1-based position in the export, or 0 when the importer assigns it
	Sequence int

	Book       int
	Date       string
	Account    string
	Invoice    string
	Name       string
	TaxID      string
	Operation  int
	Deductible int

	Bases             [3]decimal.Decimal
	VATPercents       [3]decimal.Decimal
	SurchargePercents [3]decimal.Decimal
	VATAmounts        [3]decimal.Decimal
	SurchargeAmounts  [3]decimal.Decimal
	Total             decimal.Decimal

	Goods int

	// Side is only written by the simplified schema
	Side invoice.LedgerSide
}

// BuildRow maps validated invoice fields to a ledger row. Amounts are rounded to
// two decimals and the VAT rate is derived from the base and the VAT amount.
func BuildRow(f *invoice.Fields, settings invoice.Settings, sequence int) Row {
	base := invoice.Round2(value(f.BaseImponible))
	cuota := invoice.Round2(value(f.CuotaIVA))
	total := invoice.Round2(value(f.Total))

	row := Row{
		Sequence:   sequence,
		Book:       generalBook,
		Date:       text(f.Fecha),
		Account:    invoice.NormalizeAccountCode(text(f.CodigoProveedor), settings.ProviderAccountCodeDefault),
		Invoice:    text(f.NumeroFactura),
		Name:       text(f.Proveedor),
		TaxID:      text(f.CIFProveedor),
		Operation:  domesticOperation,
		Deductible: settings.DeducibilityMode.Code(),
		Total:      total,
		Goods:      noGoods,
		Side:       settings.LedgerSide,
	}
	row.Bases[0] = base
	row.VATPercents[0] = invoice.VATPercent(base.InexactFloat64(), cuota.InexactFloat64())
	row.VATAmounts[0] = cuota
	return row
}

func value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
