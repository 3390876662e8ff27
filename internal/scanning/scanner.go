package scanning

import (
	"context"
	"errors"
	"fmt"

	"github.com/zombor/invoice-ledger/internal/invoice"
)

// ErrNotConfigured is wrapped by every ConfigError
var ErrNotConfigured = errors.New("extraction service not configured")

// Request is one document sent to an extraction collaborator, with the hints the
// user chose at upload time
type Request struct {
	Filename      string
	ContentType   string
	Data          []byte
	ProviderCode  string
	DocumentType  invoice.DocumentType
	Deductibility invoice.Deducibility
}

// Scanner defines the interface for invoice extraction collaborators
type Scanner interface {
	// ScanInvoice extracts the financial fields of one invoice document.
	// Failures are a *ConfigError, an *HTTPError, a *ParseError or a transport error.
	ScanInvoice(ctx context.Context, req Request) (*invoice.Fields, error)
	// Close closes the scanner and releases resources
	Close() error
}

// ConfigError reports a missing credential or an unusable service address
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not configured: %s", e.Setting, e.Reason)
	}
	return fmt.Sprintf("%s not configured", e.Setting)
}

func (e *ConfigError) Unwrap() error {
	return ErrNotConfigured
}

// HTTPError is a non-2xx reply from an upstream service
type HTTPError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Body)
}

// ParseError means the collaborator answered but its structured data could not be read
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing invoice data: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Fields is the all-null result reported in place of the unreadable data
func (e *ParseError) Fields() *invoice.Fields {
	return &invoice.Fields{Error: e.Error()}
}

// Unconfigured is used in place of a collaborator whose settings are missing.
// Every document fails with the same ConfigError.
type Unconfigured struct {
	Setting string
	Reason  string
}

// ScanInvoice always returns a ConfigError
func (u *Unconfigured) ScanInvoice(ctx context.Context, req Request) (*invoice.Fields, error) {
	return nil, &ConfigError{Setting: u.Setting, Reason: u.Reason}
}

// Close is a no-op
func (u *Unconfigured) Close() error {
	return nil
}
