package ledger

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

const bom = "\xef\xbb\xbf"

var _ = Describe("Exporter", func() {
	var (
		profile    Profile
		settings   invoice.Settings
		candidates []Candidate
		clock      *fixedTime
		payload    *Payload
		err        error
	)

	BeforeEach(func() {
		profile = DefaultProfile()
		settings = invoice.Settings{}
		clock = &fixedTime{now: time.Date(2024, 3, 5, 18, 30, 0, 0, time.UTC)}
		candidates = []Candidate{
			{Filename: "norte.pdf", Fields: &invoice.Fields{
				Fecha:           invoice.String("15/01/2024"),
				NumeroFactura:   invoice.String("F-1"),
				BaseImponible:   invoice.Float(100),
				CuotaIVA:        invoice.Float(21),
				Total:           invoice.Float(121),
				Proveedor:       invoice.String(`Norte; "Sur" SL`),
				CIFProveedor:    invoice.String("B12345678"),
				CodigoProveedor: invoice.String("520.1"),
			}},
			{Filename: "ticket.jpg", Fields: &invoice.Fields{
				Fecha:         invoice.String("02/02/2024"),
				NumeroFactura: invoice.String("T-9"),
				BaseImponible: invoice.Float(1234.5),
				CuotaIVA:      invoice.Float(123.45),
				Total:         invoice.Float(1357.95),
				Proveedor:     invoice.String("Café Plaza"),
			}},
		}
	})

	JustBeforeEach(func() {
		payload, err = NewExporterWithDeps(profile, clock).Export(candidates, settings)
	})

	lines := func() []string {
		body := string(payload.Body)
		Expect(body).To(HavePrefix(bom))
		return strings.Split(strings.TrimPrefix(body, bom), profile.LineEnding)
	}

	Describe("the VAT book profile", func() {
		It("names the file for the importer", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(payload.Filename).To(Equal("IVS.xls"))
			Expect(payload.ContentType).To(Equal("application/vnd.ms-excel; charset=utf-8"))
			Expect(payload.Rows).To(Equal(2))
		})

		It("writes the 26 column header", func() {
			Expect(lines()[0]).To(Equal("Codigo;Libro_IVA;Fecha;Cuenta;Factura;Nombre;CIF;Tipo_Operacion;Deducible;" +
				"Base_1;Base_2;Base_3;Pct_IVA_1;Pct_IVA_2;Pct_IVA_3;Pct_Recargo_1;Pct_Recargo_2;Pct_Recargo_3;" +
				"Importe_IVA_1;Importe_IVA_2;Importe_IVA_3;Importe_Recargo_1;Importe_Recargo_2;Importe_Recargo_3;" +
				"Total;Bienes_Soportados"))
		})

		It("writes one CRLF separated row per invoice without a trailing break", func() {
			l := lines()
			Expect(l).To(HaveLen(3))
			Expect(string(payload.Body)).NotTo(HaveSuffix("\r\n"))
			Expect(l[1]).To(Equal(`1;1;15/01/2024;5200000001;F-1;"Norte; ""Sur"" SL";B12345678;0;0;` +
				"100,00;0,00;0,00;21,00;0,00;0,00;0,00;0,00;0,00;21,00;0,00;0,00;0,00;0,00;0,00;121,00;0"))
			Expect(l[2]).To(Equal("2;1;02/02/2024;4000000000;T-9;Café Plaza;;0;0;" +
				"1234,50;0,00;0,00;10,00;0,00;0,00;0,00;0,00;0,00;123,45;0,00;0,00;0,00;0,00;0,00;1357,95;0"))
		})

		It("has 26 fields in every row", func() {
			for _, l := range lines() {
				Expect(strings.Split(strings.ReplaceAll(l, `"Norte; ""Sur"" SL"`, "x"), ";")).To(HaveLen(26))
			}
		})

		It("produces identical output for identical input", func() {
			again, err := NewExporterWithDeps(profile, clock).Export(candidates, settings)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Body).To(Equal(payload.Body))
		})

		When("the settings change deducibility and account", func() {
			BeforeEach(func() {
				settings = invoice.Settings{ProviderAccountCodeDefault: "410.7", DeducibilityMode: invoice.Prorated}
			})

			It("applies them to every row", func() {
				l := lines()
				Expect(l[1]).To(HavePrefix("1;1;15/01/2024;5200000001;"))
				Expect(strings.Split(l[2], ";")[3]).To(Equal("4100000007"))
				Expect(strings.Split(l[2], ";")[8]).To(Equal("2"))
			})
		})

		When("sequence numbers are left to the importer", func() {
			BeforeEach(func() {
				profile.Sequence = SequenceOmit
			})

			It("leaves the first column empty", func() {
				Expect(lines()[1]).To(HavePrefix(";1;15/01/2024;"))
			})
		})

		When("LF line endings and no header are chosen", func() {
			BeforeEach(func() {
				profile.LineEnding = LF
				profile.Headers = false
			})

			It("writes only the rows", func() {
				l := lines()
				Expect(l).To(HaveLen(2))
				Expect(l[0]).To(HavePrefix("1;1;15/01/2024"))
				Expect(string(payload.Body)).NotTo(ContainSubstring("\r"))
			})
		})
	})

	Describe("the simplified profile", func() {
		BeforeEach(func() {
			profile.Schema = SchemaSimple
			settings.LedgerSide = invoice.Credit
		})

		It("names the file after the export date", func() {
			Expect(payload.Filename).To(Equal("REMESA_CONTASOL_2024-03-05.csv"))
			Expect(payload.ContentType).To(Equal("text/csv; charset=utf-8"))
		})

		It("writes the reduced columns", func() {
			l := lines()
			Expect(l[0]).To(Equal("Fecha;Proveedor;CIF;Nº Factura;Base;%IVA;Cuota IVA;Total;Cuenta;D/H"))
			Expect(l[2]).To(Equal("02/02/2024;Café Plaza;;T-9;1234,50;10,00;123,45;1357,95;4000000000;H"))
		})
	})

	Describe("validation", func() {
		BeforeEach(func() {
			candidates[1].Fields.Fecha = nil
		})

		It("returns the offending filenames and no payload", func() {
			Expect(payload).To(BeNil())
			var verr *ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
			Expect(err.(*ValidationError).Filenames).To(Equal([]string{"ticket.jpg"}))
		})
	})

	When("the profile is invalid", func() {
		BeforeEach(func() {
			profile.Format = "pdf"
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("unknown format")))
		})
	})

	Describe("the spreadsheet format", func() {
		var book *excelize.File

		BeforeEach(func() {
			profile.Format = FormatXLSX
		})

		JustBeforeEach(func() {
			Expect(err).NotTo(HaveOccurred())
			var openErr error
			book, openErr = excelize.OpenReader(bytes.NewReader(payload.Body))
			Expect(openErr).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			if book != nil {
				book.Close()
			}
		})

		numFmt := func(sheet, cell string) string {
			id, err := book.GetCellStyle(sheet, cell)
			Expect(err).NotTo(HaveOccurred())
			style, err := book.GetStyle(id)
			Expect(err).NotTo(HaveOccurred())
			if style.CustomNumFmt == nil {
				return fmt.Sprintf("builtin:%d", style.NumFmt)
			}
			return *style.CustomNumFmt
		}

		raw := func(sheet, cell string) string {
			v, err := book.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
			Expect(err).NotTo(HaveOccurred())
			return v
		}

		It("names the workbook for the importer", func() {
			Expect(payload.Filename).To(Equal("IVS.xlsx"))
			Expect(payload.ContentType).To(Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
		})

		It("writes the header row exactly", func() {
			rows, err := book.GetRows("IVS")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows[0]).To(Equal(Headers(SchemaIVS)))
			Expect(rows).To(HaveLen(3))
		})

		It("writes typed cells", func() {
			Expect(raw("IVS", "A2")).To(Equal("1"))
			Expect(raw("IVS", "D2")).To(Equal("5200000001"))
			Expect(raw("IVS", "F2")).To(Equal(`Norte; "Sur" SL`))
			Expect(raw("IVS", "J3")).To(Equal("1234.5"))
			Expect(raw("IVS", "Y3")).To(Equal("1357.95"))
		})

		It("stores dates as dates", func() {
			Expect(raw("IVS", "C2")).To(Equal("45306"))
			Expect(numFmt("IVS", "C2")).To(Equal("dd/mm/yyyy"))
		})

		It("formats money and percentages with two decimals", func() {
			Expect(numFmt("IVS", "J2")).To(BeElementOf("#,##0.00", "builtin:4"))
			Expect(numFmt("IVS", "Y2")).To(BeElementOf("#,##0.00", "builtin:4"))
			Expect(numFmt("IVS", "M2")).To(BeElementOf("0.00", "builtin:2"))
		})

		When("a currency suffix is configured", func() {
			BeforeEach(func() {
				profile.CurrencySuffix = "€"
			})

			It("appends it to money cells only", func() {
				Expect(numFmt("IVS", "J2")).To(Equal(`#,##0.00 "€"`))
				Expect(numFmt("IVS", "M2")).To(BeElementOf("0.00", "builtin:2"))
			})
		})

		When("a date cannot be read", func() {
			BeforeEach(func() {
				candidates[0].Fields.Fecha = invoice.String("mid January")
			})

			It("keeps the text", func() {
				Expect(raw("IVS", "C2")).To(Equal("mid January"))
			})
		})

		When("the simplified schema is chosen", func() {
			BeforeEach(func() {
				profile.Schema = SchemaSimple
			})

			It("writes the remittance workbook", func() {
				Expect(payload.Filename).To(Equal("REMESA_CONTASOL_2024-03-05.xlsx"))
				rows, err := book.GetRows("Remesa")
				Expect(err).NotTo(HaveOccurred())
				Expect(rows[0]).To(Equal(Headers(SchemaSimple)))
				Expect(rows[1][9]).To(Equal("D"))
			})
		})
	})
})

var _ = Describe("Profile", func() {
	It("defaults to the delimited VAT book", func() {
		p := DefaultProfile()
		Expect(p.Validate()).To(Succeed())
		Expect(p.Schema).To(Equal(SchemaIVS))
		Expect(p.Format).To(Equal(FormatCSV))
		Expect(p.Sequence).To(Equal(SequenceAuto))
		Expect(p.LineEnding).To(Equal(CRLF))
		Expect(p.Headers).To(BeTrue())
	})

	DescribeTable("parsing options",
		func(parse func(string) (string, error), in, out string) {
			v, err := parse(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(out))
		},
		Entry("schema", func(s string) (string, error) { v, err := ParseSchema(s); return string(v), err }, " Simple ", "simple"),
		Entry("format", func(s string) (string, error) { v, err := ParseFormat(s); return string(v), err }, "XLSX", "xlsx"),
		Entry("sequence", func(s string) (string, error) { v, err := ParseSequence(s); return string(v), err }, "omit", "omit"),
		Entry("line ending", ParseLineEnding, "lf", "\n"),
	)

	It("rejects unknown options", func() {
		_, err := ParseSchema("sage")
		Expect(err).To(HaveOccurred())
		_, err = ParseLineEnding("cr")
		Expect(err).To(HaveOccurred())
	})
})
