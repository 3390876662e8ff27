package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

const (
	dateFormat    = "dd/mm/yyyy"
	moneyFormat   = "#,##0.00"
	percentFormat = "0.00"
)

var sheetNames = map[Schema]string{
	SchemaIVS:    "IVS",
	SchemaSimple: "Remesa",
}

// writeSpreadsheet renders rows as an xlsx workbook with one sheet
func writeSpreadsheet(rows []Row, p Profile) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetNames[p.Schema]
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	styles, err := newStyles(f, p.CurrencySuffix)
	if err != nil {
		return nil, err
	}

	cols := p.Schema.columns()
	line := 1
	if p.Headers {
		for i, c := range cols {
			if err := setCell(f, sheet, i+1, line, c.header, styles.header); err != nil {
				return nil, err
			}
		}
		line++
	}

	for _, r := range rows {
		for i, c := range cols {
			v, style := spreadsheetValue(c, r, styles)
			if err := setCell(f, sheet, i+1, line, v, style); err != nil {
				return nil, err
			}
		}
		line++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type cellStyles struct {
	header  int
	date    int
	money   int
	percent int
}

func newStyles(f *excelize.File, currencySuffix string) (cellStyles, error) {
	var s cellStyles
	var err error

	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, fmt.Errorf("creating header style: %w", err)
	}

	date := dateFormat
	if s.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &date}); err != nil {
		return s, fmt.Errorf("creating date style: %w", err)
	}

	money := moneyFormat
	if suffix := strings.ReplaceAll(strings.TrimSpace(currencySuffix), `"`, ""); suffix != "" {
		money = fmt.Sprintf(`%s "%s"`, moneyFormat, suffix)
	}
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &money}); err != nil {
		return s, fmt.Errorf("creating money style: %w", err)
	}

	percent := percentFormat
	if s.percent, err = f.NewStyle(&excelize.Style{CustomNumFmt: &percent}); err != nil {
		return s, fmt.Errorf("creating percent style: %w", err)
	}
	return s, nil
}

// spreadsheetValue converts a column value to a typed cell. Dates that cannot be
// read are written as text so nothing the user typed is lost.
func spreadsheetValue(c column, r Row, styles cellStyles) (any, int) {
	v := c.value(r)
	switch c.kind {
	case kindDate:
		s, _ := v.(string)
		if t, ok := invoice.ParseDate(s); ok {
			return t, styles.date
		}
		return s, 0
	case kindMoney, kindPercent:
		d, ok := v.(decimal.Decimal)
		if !ok {
			return v, 0
		}
		style := styles.money
		if c.kind == kindPercent {
			style = styles.percent
		}
		return d.InexactFloat64(), style
	}
	return v, 0
}

func setCell(f *excelize.File, sheet string, col, row int, v any, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if v != nil {
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("setting %s: %w", cell, err)
		}
	}
	if style != 0 {
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("styling %s: %w", cell, err)
		}
	}
	return nil
}
