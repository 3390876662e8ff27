package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

var _ = Describe("Pipeline", func() {
	var (
		mistral   *ghttp.Server
		anthropic *ghttp.Server
		cfg       PipelineConfig
		req       Request
		fields    *invoice.Fields
		err       error
	)

	BeforeEach(func() {
		mistral = ghttp.NewServer()
		anthropic = ghttp.NewServer()
		cfg = PipelineConfig{
			MistralKey:   "m-key",
			MistralURL:   mistral.URL() + "/v1/chat/completions",
			AnthropicKey: "a-key",
			AnthropicURL: anthropic.URL() + "/v1/messages",
		}
		req = Request{
			Filename:    "f1.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.4 fake"),
		}
	})

	AfterEach(func() {
		mistral.Close()
		anthropic.Close()
	})

	JustBeforeEach(func() {
		fields, err = NewPipeline(cfg).ScanInvoice(context.Background(), req)
	})

	When("both services answer", func() {
		BeforeEach(func() {
			mistral.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer m-key"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					body, _ := io.ReadAll(r.Body)
					var sent mistralRequest
					Expect(json.Unmarshal(body, &sent)).To(Succeed())
					Expect(sent.Temperature).To(Equal(0.0))
					Expect(sent.Messages[0].Content[1].Type).To(Equal("document_url"))
					Expect(sent.Messages[0].Content[1].DocumentURL).To(HavePrefix("data:application/pdf;base64,"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"choices": []map[string]any{{"message": map[string]any{"content": "FACTURA F-7\nTotal 121,00"}}},
				}),
			))
			anthropic.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/messages"),
				ghttp.VerifyHeaderKV("x-api-key", "a-key"),
				ghttp.VerifyHeaderKV("anthropic-version", anthropicVersion),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					body, _ := io.ReadAll(r.Body)
					var sent anthropicRequest
					Expect(json.Unmarshal(body, &sent)).To(Succeed())
					Expect(sent.System).To(Equal(structureSystemPrompt))
					Expect(sent.Messages[0].Content).To(ContainSubstring("FACTURA F-7"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"content": []map[string]any{{"type": "text", "text": "```json\n{\"numero_factura\":\"F-7\",\"total\":121,\"cuota_iva\":21}\n```"}},
				}),
			))
		})

		It("returns the structured fields", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(*fields.NumeroFactura).To(Equal("F-7"))
			Expect(*fields.BaseImponible).To(Equal(100.0))
		})
	})

	When("the structuring answer is not JSON", func() {
		BeforeEach(func() {
			mistral.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"content": "text"}}},
			}))
			anthropic.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"content": []map[string]any{{"type": "text", "text": "Lo siento, no puedo leer la factura."}},
			}))
		})

		It("returns a parse error", func() {
			var perr *ParseError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(fields).To(BeNil())
		})
	})

	When("OCR fails", func() {
		BeforeEach(func() {
			mistral.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"message":"bad key"}`))
		})

		It("returns an HTTP error and skips structuring", func() {
			var herr *HTTPError
			Expect(errors.As(err, &herr)).To(BeTrue())
			Expect(herr.Service).To(Equal("mistral"))
			Expect(anthropic.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the Mistral key is missing", func() {
		BeforeEach(func() {
			cfg.MistralKey = ""
		})

		It("returns a configuration error without calling out", func() {
			Expect(err).To(MatchError(ErrNotConfigured))
			Expect(err.Error()).To(ContainSubstring("MISTRAL_API_KEY"))
			Expect(mistral.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the Anthropic key is missing", func() {
		BeforeEach(func() {
			cfg.AnthropicKey = ""
		})

		It("returns a configuration error", func() {
			Expect(err).To(MatchError(ErrNotConfigured))
			Expect(err.Error()).To(ContainSubstring("ANTHROPIC_API_KEY"))
		})
	})
})
