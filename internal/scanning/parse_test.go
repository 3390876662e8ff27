package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

var _ = Describe("parseInvoiceJSON", func() {
	var (
		jsonInput string
		data      *invoice.Fields
		err       error
	)

	JustBeforeEach(func() {
		data, err = parseInvoiceJSON(jsonInput)
	})

	When("parsing valid JSON", func() {
		BeforeEach(func() {
			jsonInput = `{"fecha": "15/01/2024", "numero_factura": "F-2024-001", "base_imponible": 100, "cuota_iva": 21, "total": 121, "proveedor": "Papelería Soler SL", "cif_proveedor": "B12345678"}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse every field", func() {
			Expect(*data.Fecha).To(Equal("15/01/2024"))
			Expect(*data.NumeroFactura).To(Equal("F-2024-001"))
			Expect(*data.BaseImponible).To(Equal(100.0))
			Expect(*data.CuotaIVA).To(Equal(21.0))
			Expect(*data.Total).To(Equal(121.0))
			Expect(*data.Proveedor).To(Equal("Papelería Soler SL"))
			Expect(*data.CIFProveedor).To(Equal("B12345678"))
			Expect(data.CodigoProveedor).To(BeNil())
		})
	})

	When("parsing JSON with markdown code blocks and chatter", func() {
		BeforeEach(func() {
			jsonInput = "Aquí tienes:\n```json\n{\"fecha\": \"2024-01-15\", \"total\": 10.50}\n```"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should normalize the date", func() {
			Expect(*data.Fecha).To(Equal("15/01/2024"))
		})
	})

	When("amounts come back as Spanish strings", func() {
		BeforeEach(func() {
			jsonInput = `{"base_imponible": "1.000,00", "cuota_iva": "210,00", "total": "1.210,00", "codigo_proveedor": 4000012}`
		})

		It("should read them as numbers", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(*data.BaseImponible).To(Equal(1000.0))
			Expect(*data.CuotaIVA).To(Equal(210.0))
			Expect(*data.Total).To(Equal(1210.0))
		})

		It("should read numeric codes as text", func() {
			Expect(*data.CodigoProveedor).To(Equal("4000012"))
		})
	})

	When("the base is missing", func() {
		BeforeEach(func() {
			jsonInput = `{"cuota_iva": 21, "total": 121, "base_imponible": null}`
		})

		It("should derive it from the total", func() {
			Expect(*data.BaseImponible).To(Equal(100.0))
		})
	})

	When("fields are null", func() {
		BeforeEach(func() {
			jsonInput = `{"fecha": null, "total": null}`
		})

		It("should leave them unknown", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Fecha).To(BeNil())
			Expect(data.Total).To(BeNil())
		})
	})

	When("parsing invalid JSON", func() {
		BeforeEach(func() {
			jsonInput = `invalid json`
		})

		It("returns a parse error carrying the raw text", func() {
			var perr *ParseError
			Expect(err).To(BeAssignableToTypeOf(perr))
			Expect(err.(*ParseError).Raw).To(Equal("invalid json"))
		})
	})

	When("the JSON is truncated", func() {
		BeforeEach(func() {
			jsonInput = `{"fecha": "15/01/2024", "total": }`
		})

		It("returns a parse error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err).To(BeAssignableToTypeOf(&ParseError{}))
		})
	})
})

var _ = Describe("ParseError", func() {
	It("reports all-null fields with an error marker", func() {
		perr := &ParseError{Raw: "nope", Err: errString("no JSON object found in response")}
		fields := perr.Fields()
		Expect(fields.Total).To(BeNil())
		Expect(fields.Fecha).To(BeNil())
		Expect(fields.Error).To(ContainSubstring("no JSON object found"))
	})
})

type errString string

func (e errString) Error() string { return string(e) }
