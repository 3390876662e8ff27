package invoice

import "strings"

const (
	// AccountCodeLength is the width of a ledger account number
	AccountCodeLength = 10

	// DefaultAccountCode is the generic supplier account used when nothing else is known
	DefaultAccountCode = "4000000000"

	supplierGroupPrefix = "400"
	fullCodeMinDigits   = 8
)

// NormalizeAccountCode turns a raw supplier code into a ledger account number.
//
//	"520.1"      -> "5200000001" (prefix, zero padding, suffix)
//	"2810000000" -> "2810000000" (8 or more digits are taken as a full account)
//	"1"          -> "4000000001" (short suffix under the 400 supplier group)
//	""           -> fallback normalized the same way, or DefaultAccountCode
//
// A dotted code whose parts already exceed the width is returned unpadded and longer
// than AccountCodeLength.
func NormalizeAccountCode(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if strings.TrimSpace(fallback) == "" {
			return DefaultAccountCode
		}
		return NormalizeAccountCode(fallback, "")
	}

	if prefix, suffix, ok := strings.Cut(raw, "."); ok {
		prefix, suffix = digitsOnly(prefix), digitsOnly(suffix)
		return prefix + zeros(AccountCodeLength-len(prefix)-len(suffix)) + suffix
	}

	digits := digitsOnly(raw)
	if len(digits) >= fullCodeMinDigits {
		return digits
	}
	return supplierGroupPrefix + zeros(AccountCodeLength-len(supplierGroupPrefix)-len(digits)) + digits
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func zeros(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("0", n)
}
