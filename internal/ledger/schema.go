package ledger

import (
	"github.com/shopspring/decimal"
)

type kind int

const (
	kindText kind = iota
	kindInt
	kindDate
	kindMoney
	kindPercent
)

// column describes one output column. value returns a string, an int, a
// decimal.Decimal or nil for an empty cell.
type column struct {
	header string
	kind   kind
	value  func(r Row) any
}

func amount(get func(r Row) decimal.Decimal) func(r Row) any {
	return func(r Row) any { return get(r) }
}

// ivsColumns is the VAT book (IVA soportado) import layout. Header text and order
// are fixed by the importer.
var ivsColumns = []column{
	{"Codigo", kindInt, func(r Row) any {
		if r.Sequence == 0 {
			return nil
		}
		return r.Sequence
	}},
	{"Libro_IVA", kindInt, func(r Row) any { return r.Book }},
	{"Fecha", kindDate, func(r Row) any { return r.Date }},
	{"Cuenta", kindText, func(r Row) any { return r.Account }},
	{"Factura", kindText, func(r Row) any { return r.Invoice }},
	{"Nombre", kindText, func(r Row) any { return r.Name }},
	{"CIF", kindText, func(r Row) any { return r.TaxID }},
	{"Tipo_Operacion", kindInt, func(r Row) any { return r.Operation }},
	{"Deducible", kindInt, func(r Row) any { return r.Deductible }},
	{"Base_1", kindMoney, amount(func(r Row) decimal.Decimal { return r.Bases[0] })},
	{"Base_2", kindMoney, amount(func(r Row) decimal.Decimal { return r.Bases[1] })},
	{"Base_3", kindMoney, amount(func(r Row) decimal.Decimal { return r.Bases[2] })},
	{"Pct_IVA_1", kindPercent, amount(func(r Row) decimal.Decimal { return r.VATPercents[0] })},
	{"Pct_IVA_2", kindPercent, amount(func(r Row) decimal.Decimal { return r.VATPercents[1] })},
	{"Pct_IVA_3", kindPercent, amount(func(r Row) decimal.Decimal { return r.VATPercents[2] })},
	{"Pct_Recargo_1", kindPercent, amount(func(r Row) decimal.Decimal { return r.SurchargePercents[0] })},
	{"Pct_Recargo_2", kindPercent, amount(func(r Row) decimal.Decimal { return r.SurchargePercents[1] })},
	{"Pct_Recargo_3", kindPercent, amount(func(r Row) decimal.Decimal { return r.SurchargePercents[2] })},
	{"Importe_IVA_1", kindMoney, amount(func(r Row) decimal.Decimal { return r.VATAmounts[0] })},
	{"Importe_IVA_2", kindMoney, amount(func(r Row) decimal.Decimal { return r.VATAmounts[1] })},
	{"Importe_IVA_3", kindMoney, amount(func(r Row) decimal.Decimal { return r.VATAmounts[2] })},
	{"Importe_Recargo_1", kindMoney, amount(func(r Row) decimal.Decimal { return r.SurchargeAmounts[0] })},
	{"Importe_Recargo_2", kindMoney, amount(func(r Row) decimal.Decimal { return r.SurchargeAmounts[1] })},
	{"Importe_Recargo_3", kindMoney, amount(func(r Row) decimal.Decimal { return r.SurchargeAmounts[2] })},
	{"Total", kindMoney, amount(func(r Row) decimal.Decimal { return r.Total })},
	{"Bienes_Soportados", kindInt, func(r Row) any { return r.Goods }},
}

// simpleColumns is the reduced layout read by the batch automation
var simpleColumns = []column{
	{"Fecha", kindDate, func(r Row) any { return r.Date }},
	{"Proveedor", kindText, func(r Row) any { return r.Name }},
	{"CIF", kindText, func(r Row) any { return r.TaxID }},
	{"Nº Factura", kindText, func(r Row) any { return r.Invoice }},
	{"Base", kindMoney, amount(func(r Row) decimal.Decimal { return r.Bases[0] })},
	{"%IVA", kindPercent, amount(func(r Row) decimal.Decimal { return r.VATPercents[0] })},
	{"Cuota IVA", kindMoney, amount(func(r Row) decimal.Decimal { return r.VATAmounts[0] })},
	{"Total", kindMoney, amount(func(r Row) decimal.Decimal { return r.Total })},
	{"Cuenta", kindText, func(r Row) any { return r.Account }},
	{"D/H", kindText, func(r Row) any { return r.Side.Flag() }},
}

// Headers returns the column headers of a schema in output order
func Headers(s Schema) []string {
	cols := s.columns()
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.header
	}
	return headers
}
