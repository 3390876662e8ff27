package invoice

import (
	"strings"
	"time"
)

// DateLayout is the DD/MM/YYYY form used for every invoice date
const DateLayout = "02/01/2006"

var dateLayouts = []string{
	DateLayout,
	"2/1/2006",
	"2006-01-02",
	"02-01-2006",
	"02.01.2006",
	"2006/01/02",
}

// ParseDate reads a date in any recognised layout
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate rewrites a recognised date as DD/MM/YYYY. Text that is not a
// recognised date is returned trimmed but otherwise unchanged.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if t, ok := ParseDate(s); ok {
		return t.Format(DateLayout)
	}
	return s
}
