package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

// Remote implements the Scanner interface by posting documents to an extraction
// webhook. The webhook answers with the fields object, possibly wrapped in {"data": ...}.
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote creates a Remote scanner. The URL is checked on every scan so a bad
// address fails the document, not the process.
func NewRemote(endpoint string, timeout time.Duration) *Remote {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Remote{
		url:    strings.TrimSpace(endpoint),
		client: &http.Client{Timeout: timeout},
	}
}

func (r *Remote) endpoint() (string, error) {
	if r.url == "" {
		return "", &ConfigError{Setting: "extraction URL"}
	}
	u, err := url.ParseRequestURI(r.url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &ConfigError{Setting: "extraction URL", Reason: fmt.Sprintf("malformed URL %q", r.url)}
	}
	return u.String(), nil
}

// ScanInvoice uploads the document with its hints as a multipart form
func (r *Remote) ScanInvoice(ctx context.Context, req Request) (*invoice.Fields, error) {
	endpoint, err := r.endpoint()
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(req.Filename)))
	header.Set("Content-Type", normalizeMimeType(req.ContentType))
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, fmt.Errorf("writing file part: %w", err)
	}

	for name, value := range map[string]string{
		"providerCode":  req.ProviderCode,
		"docType":       req.DocumentType.Label(),
		"deductibility": req.Deductibility.Label(),
		"filename":      req.Filename,
	} {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("writing %s field: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, &ConfigError{Setting: "extraction URL", Reason: err.Error()}
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("reading extraction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Service: "extraction", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ParseError{Raw: string(raw), Err: fmt.Errorf("unmarshaling json: %w", err)}
	}
	if len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
		return decodeFields(envelope.Data)
	}
	return decodeFields(raw)
}

// Close is a no-op for the HTTP client
func (r *Remote) Close() error {
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
