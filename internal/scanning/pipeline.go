package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

const (
	defaultMistralURL     = "https://api.mistral.ai/v1/chat/completions"
	defaultMistralModel   = "mistral-large-latest"
	defaultAnthropicURL   = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicVersion      = "2023-06-01"

	maxReplySize = 1 << 20
)

// PipelineConfig configures the two services used by Pipeline
type PipelineConfig struct {
	MistralKey     string
	MistralModel   string
	MistralURL     string
	AnthropicKey   string
	AnthropicModel string
	AnthropicURL   string
	Timeout        time.Duration
}

// Pipeline implements the Scanner interface in two steps: Mistral transcribes the
// document, then Claude turns the transcription into invoice fields.
type Pipeline struct {
	cfg    PipelineConfig
	client *http.Client
}

// NewPipeline creates a Pipeline. Missing keys are not checked here; every scan
// reports them as a ConfigError instead.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.MistralURL == "" {
		cfg.MistralURL = defaultMistralURL
	}
	if cfg.MistralModel == "" {
		cfg.MistralModel = defaultMistralModel
	}
	if cfg.AnthropicURL == "" {
		cfg.AnthropicURL = defaultAnthropicURL
	}
	if cfg.AnthropicModel == "" {
		cfg.AnthropicModel = defaultAnthropicModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Pipeline{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type mistralContent struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralMessage struct {
	Role    string           `json:"role"`
	Content []mistralContent `json:"content"`
}

type mistralRequest struct {
	Model       string           `json:"model"`
	Messages    []mistralMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

type mistralResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// ScanInvoice runs OCR and then structuring for one document
func (p *Pipeline) ScanInvoice(ctx context.Context, req Request) (*invoice.Fields, error) {
	if p.cfg.MistralKey == "" {
		return nil, &ConfigError{Setting: "MISTRAL_API_KEY"}
	}
	if p.cfg.AnthropicKey == "" {
		return nil, &ConfigError{Setting: "ANTHROPIC_API_KEY"}
	}

	text, err := p.transcribe(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcribing document: %w", err)
	}

	fields, err := p.structure(ctx, req, text)
	if err != nil {
		return nil, fmt.Errorf("structuring invoice: %w", err)
	}
	return fields, nil
}

func (p *Pipeline) transcribe(ctx context.Context, req Request) (string, error) {
	url, isPDF, err := dataURL(req.Data, req.ContentType)
	if err != nil {
		return "", err
	}

	document := mistralContent{Type: "image_url", ImageURL: url}
	if isPDF {
		document = mistralContent{Type: "document_url", DocumentURL: url}
	}

	body := mistralRequest{
		Model: p.cfg.MistralModel,
		Messages: []mistralMessage{{
			Role:    "user",
			Content: []mistralContent{{Type: "text", Text: transcribePrompt}, document},
		}},
		MaxTokens:   4096,
		Temperature: 0,
	}

	raw, err := p.post(ctx, "mistral", p.cfg.MistralURL, body, map[string]string{
		"Authorization": "Bearer " + p.cfg.MistralKey,
	})
	if err != nil {
		return "", err
	}

	var resp mistralResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &ParseError{Raw: string(raw), Err: fmt.Errorf("decoding mistral response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Pipeline) structure(ctx context.Context, req Request, ocrText string) (*invoice.Fields, error) {
	body := anthropicRequest{
		Model:     p.cfg.AnthropicModel,
		MaxTokens: 1024,
		System:    structureSystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: textPrompt(req, ocrText)}},
	}

	raw, err := p.post(ctx, "anthropic", p.cfg.AnthropicURL, body, map[string]string{
		"x-api-key":         p.cfg.AnthropicKey,
		"anthropic-version": anthropicVersion,
	})
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ParseError{Raw: string(raw), Err: fmt.Errorf("decoding anthropic response: %w", err)}
	}
	text := "{}"
	if len(resp.Content) > 0 {
		text = resp.Content[0].Text
	}
	return parseInvoiceJSON(text)
}

// post sends a JSON body and returns the reply body of a 2xx answer
func (p *Pipeline) post(ctx context.Context, service, url string, body any, headers map[string]string) ([]byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", service, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &ConfigError{Setting: service + " URL", Reason: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling %s API: %w", service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Service: service, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// Close is a no-op for the HTTP client
func (p *Pipeline) Close() error {
	return nil
}
