package ledger

import (
	"fmt"
	"strings"
)

// Schema selects the column layout of an export
type Schema string

const (
	// SchemaIVS is the 26 column VAT book import
	SchemaIVS Schema = "ivs"
	// SchemaSimple is the reduced 10 column remittance layout
	SchemaSimple Schema = "simple"
)

// Format selects the file format of an export
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Sequence selects whether the row number column is filled
type Sequence string

const (
	// SequenceAuto numbers rows from 1 in export order
	SequenceAuto Sequence = "auto"
	// SequenceOmit leaves the column empty for the importer to assign
	SequenceOmit Sequence = "omit"
)

// Line endings accepted by the delimited format
const (
	CRLF = "\r\n"
	LF   = "\n"
)

// Profile is an output profile. The zero value is not usable; start from DefaultProfile.
type Profile struct {
	Schema     Schema
	Format     Format
	Sequence   Sequence
	LineEnding string

	// Headers writes the header row
	Headers bool

	// CurrencySuffix is appended to money cells of spreadsheets, e.g. "€"
	CurrencySuffix string
}

// DefaultProfile is the delimited VAT book file the importer reads
func DefaultProfile() Profile {
	return Profile{
		Schema:     SchemaIVS,
		Format:     FormatCSV,
		Sequence:   SequenceAuto,
		LineEnding: CRLF,
		Headers:    true,
	}
}

// Validate reports the first unknown option
func (p Profile) Validate() error {
	if _, err := ParseSchema(string(p.Schema)); err != nil {
		return err
	}
	if _, err := ParseFormat(string(p.Format)); err != nil {
		return err
	}
	if _, err := ParseSequence(string(p.Sequence)); err != nil {
		return err
	}
	if p.LineEnding != CRLF && p.LineEnding != LF {
		return fmt.Errorf("unknown line ending %q", p.LineEnding)
	}
	return nil
}

func (s Schema) columns() []column {
	if s == SchemaSimple {
		return simpleColumns
	}
	return ivsColumns
}

// ParseSchema reads ivs or simple
func ParseSchema(s string) (Schema, error) {
	switch Schema(strings.ToLower(strings.TrimSpace(s))) {
	case SchemaIVS:
		return SchemaIVS, nil
	case SchemaSimple:
		return SchemaSimple, nil
	}
	return "", fmt.Errorf("unknown schema %q", s)
}

// ParseFormat reads csv or xlsx
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// ParseSequence reads auto or omit
func ParseSequence(s string) (Sequence, error) {
	switch Sequence(strings.ToLower(strings.TrimSpace(s))) {
	case SequenceAuto:
		return SequenceAuto, nil
	case SequenceOmit:
		return SequenceOmit, nil
	}
	return "", fmt.Errorf("unknown sequence mode %q", s)
}

// ParseLineEnding reads crlf or lf
func ParseLineEnding(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crlf":
		return CRLF, nil
	case "lf":
		return LF, nil
	}
	return "", fmt.Errorf("unknown line ending %q", s)
}
