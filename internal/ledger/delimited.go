package ledger

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const separator = ";"

// writeDelimited renders rows as semicolon separated UTF-8 text with a leading
// byte order mark. Amounts use a comma as decimal separator.
func writeDelimited(rows []Row, p Profile) ([]byte, error) {
	cols := p.Schema.columns()

	lines := make([]string, 0, len(rows)+1)
	if p.Headers {
		fields := make([]string, len(cols))
		for i, c := range cols {
			fields[i] = quote(c.header)
		}
		lines = append(lines, strings.Join(fields, separator))
	}
	for _, r := range rows {
		fields := make([]string, len(cols))
		for i, c := range cols {
			fields[i] = quote(formatDelimited(c.value(r)))
		}
		lines = append(lines, strings.Join(fields, separator))
	}

	var buf bytes.Buffer
	w := transform.NewWriter(&buf, unicode.UTF8BOM.NewEncoder())
	if _, err := w.Write([]byte(strings.Join(lines, p.LineEnding))); err != nil {
		return nil, fmt.Errorf("encoding rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding rows: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDelimited(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case decimal.Decimal:
		return strings.Replace(v.StringFixed(2), ".", ",", 1)
	}
	return fmt.Sprint(v)
}

// quote wraps a field in double quotes, doubling inner quotes, when it contains
// the separator, a quote or a line break
func quote(s string) string {
	if !strings.ContainsAny(s, separator+"\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
