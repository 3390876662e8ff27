package invoice

import "github.com/shopspring/decimal"

// epsilon is the float64 machine epsilon, added before rounding so values such as
// 1.005 that are stored just below their decimal form still round up.
const epsilon = 2.220446049250313e-16

// DefaultVATPercent is used when there is no taxable base to derive the rate from
const DefaultVATPercent = 21

// Round2 rounds an amount to two decimal places
func Round2(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x + epsilon).Round(2)
}

// VATPercent derives the VAT rate from the taxable base and the VAT amount.
// Without a positive base the standard rate is returned.
func VATPercent(base, cuota float64) decimal.Decimal {
	if base > 0 {
		return Round2(cuota / base * 100)
	}
	return decimal.NewFromInt(DefaultVATPercent)
}
