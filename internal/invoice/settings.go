package invoice

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DocumentType classifies the uploaded document
type DocumentType int

const (
	Ordinary DocumentType = iota
	Simplified
	Rectifying
)

var documentTypeNames = map[DocumentType]string{
	Ordinary:   "Ordinary",
	Simplified: "Simplified",
	Rectifying: "Rectifying",
}

var documentTypeLabels = map[DocumentType]string{
	Ordinary:   "Factura Ordinaria",
	Simplified: "Ticket / Simplificada",
	Rectifying: "Factura Rectificativa",
}

var documentTypeAliases = map[string]DocumentType{
	"ordinary":              Ordinary,
	"ordinaria":             Ordinary,
	"factura ordinaria":     Ordinary,
	"simplified":            Simplified,
	"simplificada":          Simplified,
	"ticket":                Simplified,
	"ticket / simplificada": Simplified,
	"rectifying":            Rectifying,
	"rectificativa":         Rectifying,
	"factura rectificativa": Rectifying,
}

func (d DocumentType) String() string {
	return documentTypeNames[d]
}

// Label is the Spanish name shown to users and sent to extraction collaborators
func (d DocumentType) Label() string {
	return documentTypeLabels[d]
}

func (d DocumentType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DocumentType) UnmarshalText(text []byte) error {
	v, err := lookup(documentTypeAliases, text, Ordinary, "document type")
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDocumentType reads a document type name or label
func ParseDocumentType(s string) (DocumentType, error) {
	var d DocumentType
	err := d.UnmarshalText([]byte(s))
	return d, err
}

// Deducibility says how much of the VAT can be reclaimed
type Deducibility int

const (
	Full Deducibility = iota
	None
	Prorated
)

var deducibilityNames = map[Deducibility]string{
	Full:     "Full",
	None:     "None",
	Prorated: "Prorated",
}

var deducibilityLabels = map[Deducibility]string{
	Full:     "100% Deducible",
	None:     "No Deducible",
	Prorated: "Prorrata",
}

var deducibilityAliases = map[string]Deducibility{
	"full":           Full,
	"deducible":      Full,
	"100%":           Full,
	"100% deducible": Full,
	"none":           None,
	"no deducible":   None,
	"prorated":       Prorated,
	"prorrata":       Prorated,
	"50%":            Prorated,
}

func (d Deducibility) String() string {
	return deducibilityNames[d]
}

// Label is the Spanish name shown to users and sent to extraction collaborators
func (d Deducibility) Label() string {
	return deducibilityLabels[d]
}

// Code is the ledger deducibility code: 0 deductible, 1 not deductible, 2 prorated
func (d Deducibility) Code() int {
	return int(d)
}

func (d Deducibility) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Deducibility) UnmarshalText(text []byte) error {
	v, err := lookup(deducibilityAliases, text, Full, "deducibility")
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDeducibility reads a deducibility name or label
func ParseDeducibility(s string) (Deducibility, error) {
	var d Deducibility
	err := d.UnmarshalText([]byte(s))
	return d, err
}

// LedgerSide is the side of the entry the supplier account is booked on
type LedgerSide int

const (
	Debit LedgerSide = iota
	Credit
)

var ledgerSideAliases = map[string]LedgerSide{
	"debit":  Debit,
	"debe":   Debit,
	"d":      Debit,
	"credit": Credit,
	"haber":  Credit,
	"h":      Credit,
}

func (s LedgerSide) String() string {
	if s == Credit {
		return "Credit"
	}
	return "Debit"
}

// Flag is the single letter used by the ledger: D (debe) or H (haber)
func (s LedgerSide) Flag() string {
	if s == Credit {
		return "H"
	}
	return "D"
}

func (s LedgerSide) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LedgerSide) UnmarshalText(text []byte) error {
	v, err := lookup(ledgerSideAliases, text, Debit, "ledger side")
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseLedgerSide reads a ledger side name or label
func ParseLedgerSide(s string) (LedgerSide, error) {
	var l LedgerSide
	err := l.UnmarshalText([]byte(s))
	return l, err
}

func lookup[T any](aliases map[string]T, text []byte, empty T, what string) (T, error) {
	key := strings.ToLower(strings.TrimSpace(string(text)))
	if key == "" {
		return empty, nil
	}
	v, ok := aliases[key]
	if !ok {
		return empty, fmt.Errorf("unknown %s: %q", what, string(text))
	}
	return v, nil
}

// Settings is the user supplied configuration applied to a whole export
type Settings struct {
	ProviderAccountCodeDefault string       `json:"providerAccountCodeDefault"`
	DocumentType               DocumentType `json:"documentType"`
	DeducibilityMode           Deducibility `json:"deducibilityMode"`
	LedgerSide                 LedgerSide   `json:"ledgerSide"`
}

// UnmarshalJSON also accepts the codigoProveedor and deducibilidad keys. An alias
// applies when its canonical key is absent, whatever the current value.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	aux := struct {
		*plain
		ProviderAccountCodeDefault *string       `json:"providerAccountCodeDefault"`
		DeducibilityMode           *Deducibility `json:"deducibilityMode"`
		CodigoProveedor            *string       `json:"codigoProveedor"`
		Deducibilidad              *Deducibility `json:"deducibilidad"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.ProviderAccountCodeDefault != nil:
		s.ProviderAccountCodeDefault = *aux.ProviderAccountCodeDefault
	case aux.CodigoProveedor != nil:
		s.ProviderAccountCodeDefault = *aux.CodigoProveedor
	}
	switch {
	case aux.DeducibilityMode != nil:
		s.DeducibilityMode = *aux.DeducibilityMode
	case aux.Deducibilidad != nil:
		s.DeducibilityMode = *aux.Deducibilidad
	}
	return nil
}
