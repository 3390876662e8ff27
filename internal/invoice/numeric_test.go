package invoice

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Round2", func() {
	DescribeTable("rounding",
		func(in float64, expected string) {
			Expect(Round2(in).StringFixed(2)).To(Equal(expected))
		},
		Entry("already rounded", 125.5, "125.50"),
		Entry("binary drift", 0.1+0.2, "0.30"),
		Entry("half stored below its decimal form", 1.005, "1.01"),
		Entry("another half case", 2.675, "2.68"),
		Entry("rounds down", 10.004, "10.00"),
		Entry("zero", 0.0, "0.00"),
		Entry("large amount", 1234567.891, "1234567.89"),
	)

	It("stays within half a cent of the input", func() {
		for _, x := range []float64{0.001, 0.015, 3.14159, 99.995, 1e6 + 0.125, 42.4242} {
			r := Round2(x)
			Expect(r.Exponent()).To(BeNumerically(">=", -2))
			Expect(math.Abs(r.InexactFloat64() - x)).To(BeNumerically("<", 0.005+1e-9))
		}
	})
})

var _ = Describe("VATPercent", func() {
	It("derives the rate from base and VAT", func() {
		Expect(VATPercent(100, 21).StringFixed(2)).To(Equal("21.00"))
	})

	It("rounds the derived rate", func() {
		Expect(VATPercent(30, 3).StringFixed(2)).To(Equal("10.00"))
		Expect(VATPercent(33.33, 3.33).StringFixed(2)).To(Equal("9.99"))
	})

	It("falls back to the standard rate without a base", func() {
		Expect(VATPercent(0, 5).StringFixed(2)).To(Equal("21.00"))
		Expect(VATPercent(-10, 5).IntPart()).To(Equal(int64(DefaultVATPercent)))
	})
})

var _ = Describe("ParseAmount", func() {
	DescribeTable("separators",
		func(in string, expected float64) {
			v, err := ParseAmount(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeNumerically("~", expected, 1e-9))
		},
		Entry("dot decimal", "12.5", 12.5),
		Entry("comma decimal", "1,5", 1.5),
		Entry("spanish thousands", "1.234,56", 1234.56),
		Entry("english thousands", "1,234.56", 1234.56),
		Entry("repeated dots group thousands", "1.234.567", 1234567.0),
		Entry("repeated commas group thousands", "1,234,567", 1234567.0),
		Entry("currency sign and spaces", "1 234,50 €", 1234.5),
		Entry("negative", "-1.234,56", -1234.56),
	)

	DescribeTable("ambiguous or malformed",
		func(in string) {
			_, err := ParseAmount(in)
			Expect(err).To(MatchError(ErrInvalidValue))
		},
		Entry("decimal separator repeated", "1.234,5.6"),
		Entry("short thousands group", "1,2,3"),
		Entry("long leading group", "1234.567.890"),
		Entry("words", "twenty"),
	)
})
