package invoice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownField is returned when an edit names a field that does not exist
	ErrUnknownField = errors.New("unknown invoice field")

	// ErrInvalidValue is returned when a numeric field cannot hold the given text
	ErrInvalidValue = errors.New("invalid field value")
)

// Field names one editable member of Fields, using its JSON name
type Field string

const (
	FieldFecha           Field = "fecha"
	FieldNumeroFactura   Field = "numero_factura"
	FieldBaseImponible   Field = "base_imponible"
	FieldCuotaIVA        Field = "cuota_iva"
	FieldTotal           Field = "total"
	FieldProveedor       Field = "proveedor"
	FieldCIFProveedor    Field = "cif_proveedor"
	FieldCodigoProveedor Field = "codigo_proveedor"
)

var fields = []Field{
	FieldFecha,
	FieldNumeroFactura,
	FieldBaseImponible,
	FieldCuotaIVA,
	FieldTotal,
	FieldProveedor,
	FieldCIFProveedor,
	FieldCodigoProveedor,
}

// ParseField resolves a JSON field name
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range fields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Numeric reports whether the field holds an amount
func (f Field) Numeric() bool {
	return f == FieldBaseImponible || f == FieldCuotaIVA || f == FieldTotal
}

// Fields holds the financial data extracted from one supplier invoice.
// A nil member means the value is unknown.
type Fields struct {
	Fecha           *string  `json:"fecha"` // DD/MM/YYYY
	NumeroFactura   *string  `json:"numero_factura"`
	BaseImponible   *float64 `json:"base_imponible"`
	CuotaIVA        *float64 `json:"cuota_iva"`
	Total           *float64 `json:"total"`
	Proveedor       *string  `json:"proveedor"`
	CIFProveedor    *string  `json:"cif_proveedor"`
	CodigoProveedor *string  `json:"codigo_proveedor,omitempty"`

	// Error is set when the collaborator answered but its structured data could not be read
	Error string `json:"error,omitempty"`
}

// String returns a pointer to s
func String(s string) *string {
	return &s
}

// Float returns a pointer to f
func Float(f float64) *float64 {
	return &f
}

// Clone returns a deep copy of the fields
func (f *Fields) Clone() *Fields {
	if f == nil {
		return nil
	}
	c := *f
	c.Fecha = cloneString(f.Fecha)
	c.NumeroFactura = cloneString(f.NumeroFactura)
	c.Proveedor = cloneString(f.Proveedor)
	c.CIFProveedor = cloneString(f.CIFProveedor)
	c.CodigoProveedor = cloneString(f.CodigoProveedor)
	c.BaseImponible = cloneFloat(f.BaseImponible)
	c.CuotaIVA = cloneFloat(f.CuotaIVA)
	c.Total = cloneFloat(f.Total)
	return &c
}

// Set overwrites one field from its textual form. An empty value clears the field.
// Only numeric fields are parsed; nothing else is checked here.
func (f *Fields) Set(field Field, value string) error {
	value = strings.TrimSpace(value)

	if field.Numeric() {
		var amount *float64
		if value != "" {
			parsed, err := ParseAmount(value)
			if err != nil {
				return err
			}
			amount = &parsed
		}
		switch field {
		case FieldBaseImponible:
			f.BaseImponible = amount
		case FieldCuotaIVA:
			f.CuotaIVA = amount
		case FieldTotal:
			f.Total = amount
		}
		return nil
	}

	var text *string
	if value != "" {
		text = &value
	}
	switch field {
	case FieldFecha:
		f.Fecha = text
	case FieldNumeroFactura:
		f.NumeroFactura = text
	case FieldProveedor:
		f.Proveedor = text
	case FieldCIFProveedor:
		f.CIFProveedor = text
	case FieldCodigoProveedor:
		f.CodigoProveedor = text
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, string(field))
	}
	return nil
}

// Repair fills a missing taxable base or VAT amount from the total, and rewrites
// the date into DD/MM/YYYY when it is in another recognised layout.
func (f *Fields) Repair() {
	if f.Total != nil {
		switch {
		case f.BaseImponible == nil && f.CuotaIVA != nil:
			f.BaseImponible = Float(Round2(*f.Total - *f.CuotaIVA).InexactFloat64())
		case f.CuotaIVA == nil && f.BaseImponible != nil:
			f.CuotaIVA = Float(Round2(*f.Total - *f.BaseImponible).InexactFloat64())
		}
	}
	if f.Fecha != nil {
		normalized := NormalizeDate(*f.Fecha)
		if normalized == "" {
			f.Fecha = nil
		} else {
			f.Fecha = &normalized
		}
	}
	f.NumeroFactura = trimmed(f.NumeroFactura)
	f.Proveedor = trimmed(f.Proveedor)
	f.CIFProveedor = trimmed(f.CIFProveedor)
	f.CodigoProveedor = trimmed(f.CodigoProveedor)
}

// ParseAmount reads an amount written with either a dot or a Spanish comma decimal
// separator, with optional thousands separators and currency sign. When both
// separators appear the last one is the decimal separator. A lone comma or dot
// is decimal, a repeated one groups thousands.
func ParseAmount(s string) (float64, error) {
	invalid := fmt.Errorf("%w: %q is not an amount", ErrInvalidValue, s)
	clean := strings.NewReplacer(" ", "", "\u00a0", "", "€", "").Replace(strings.TrimSpace(s))

	var decimalSep, groupSep string
	lastDot, lastComma := strings.LastIndex(clean, "."), strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalSep, groupSep = ",", "."
		if lastDot > lastComma {
			decimalSep, groupSep = ".", ","
		}
	case lastComma >= 0:
		decimalSep = ","
		if strings.Count(clean, ",") > 1 {
			decimalSep, groupSep = "", ","
		}
	case lastDot >= 0:
		decimalSep = "."
		if strings.Count(clean, ".") > 1 {
			decimalSep, groupSep = "", "."
		}
	}

	whole, frac := clean, ""
	if decimalSep != "" {
		i := strings.LastIndex(clean, decimalSep)
		whole, frac = clean[:i], clean[i+1:]
		if strings.Contains(whole, decimalSep) {
			return 0, invalid
		}
	}
	if groupSep != "" {
		groups := strings.Split(strings.TrimLeft(whole, "+-"), groupSep)
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return 0, invalid
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return 0, invalid
			}
		}
		whole = strings.ReplaceAll(whole, groupSep, "")
	}

	number := whole
	if frac != "" {
		number += "." + frac
	}
	d, err := decimal.NewFromString(number)
	if err != nil {
		return 0, invalid
	}
	return d.InexactFloat64(), nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
