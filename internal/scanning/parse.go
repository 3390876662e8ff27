package scanning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

// looseAmount accepts a JSON number, a numeric string in either decimal style, or null
type looseAmount struct {
	value *float64
}

func (a *looseAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		v, err := invoice.ParseAmount(s)
		if err != nil {
			return err
		}
		a.value = &v
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("amount %s: %w", data, err)
	}
	a.value = &v
	return nil
}

// looseText accepts a JSON string, a number (account codes often come back as numbers), or null
type looseText struct {
	value *string
}

func (t *looseText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	t.value = &s
	return nil
}

type wireFields struct {
	Fecha           looseText   `json:"fecha"`
	NumeroFactura   looseText   `json:"numero_factura"`
	BaseImponible   looseAmount `json:"base_imponible"`
	CuotaIVA        looseAmount `json:"cuota_iva"`
	Total           looseAmount `json:"total"`
	Proveedor       looseText   `json:"proveedor"`
	CIFProveedor    looseText   `json:"cif_proveedor"`
	CodigoProveedor looseText   `json:"codigo_proveedor"`
	Error           string      `json:"error"`
}

// decodeFields reads a fields object and repairs derivable values.
// A reply that carries an error member is reported as a ParseError.
func decodeFields(data []byte) (*invoice.Fields, error) {
	var w wireFields
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &ParseError{Raw: string(data), Err: fmt.Errorf("unmarshaling json: %w", err)}
	}
	if w.Error != "" {
		return nil, &ParseError{Raw: string(data), Err: errors.New(w.Error)}
	}

	fields := &invoice.Fields{
		Fecha:           w.Fecha.value,
		NumeroFactura:   w.NumeroFactura.value,
		BaseImponible:   w.BaseImponible.value,
		CuotaIVA:        w.CuotaIVA.value,
		Total:           w.Total.value,
		Proveedor:       w.Proveedor.value,
		CIFProveedor:    w.CIFProveedor.value,
		CodigoProveedor: w.CodigoProveedor.value,
	}
	fields.Repair()
	return fields, nil
}

// parseInvoiceJSON extracts the fields object from a model's free-text answer
func parseInvoiceJSON(text string) (*invoice.Fields, error) {
	raw := text
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, &ParseError{Raw: raw, Err: errors.New("no JSON object found in response")}
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, &ParseError{Raw: raw, Err: errors.New("invalid JSON object in response")}
	}

	fields, err := decodeFields([]byte(text[startIdx : endIdx+1]))
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Raw = raw
		}
		return nil, err
	}
	return fields, nil
}
