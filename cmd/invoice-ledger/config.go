package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/invoice-ledger/internal/api"
	"github.com/zombor/invoice-ledger/internal/invoice"
	"github.com/zombor/invoice-ledger/internal/ledger"
)

const envPrefix = "INVOICE_LEDGER"

type config struct {
	port        int
	dbPath      string
	storagePath string

	scanner         string
	geminiKey       string
	geminiModel     string
	ollamaURL       string
	ollamaModel     string
	mistralKey      string
	mistralModel    string
	anthropicKey    string
	anthropicModel  string
	extractURL      string
	dispatchTimeout time.Duration

	settings invoice.Settings
	profile  ledger.Profile

	auth        api.BasicAuth
	showVersion bool
}

// parseConfig reads flags, then INVOICE_LEDGER_* variables. Provider keys also fall
// back to their conventional variables (GEMINI_API_KEY, MISTRAL_API_KEY, ANTHROPIC_API_KEY).
func parseConfig(args []string, getenv func(string) string) (*config, *ff.FlagSet, error) {
	fs := ff.NewFlagSet("invoice-ledger")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "invoice-ledger.db", "Database file path (empty keeps the queue in memory)")
		storagePath     = fs.StringLong("storage", "./documents", "Document storage directory (empty keeps documents in memory)")
		scannerType     = fs.StringLong("scanner", "pipeline", "Extraction service: 'pipeline', 'gemini', 'ollama' or 'remote'")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llava", "Ollama model name")
		mistralKey      = fs.StringLong("mistral-key", "", "Mistral API key for OCR (or set MISTRAL_API_KEY env var)")
		mistralModel    = fs.StringLong("mistral-model", "mistral-large-latest", "Mistral model name")
		anthropicKey    = fs.StringLong("anthropic-key", "", "Anthropic API key for structuring (or set ANTHROPIC_API_KEY env var)")
		anthropicModel  = fs.StringLong("anthropic-model", "claude-sonnet-4-20250514", "Anthropic model name")
		extractURL      = fs.StringLong("extract-url", "", "Extraction webhook URL for the 'remote' scanner")
		dispatchTimeout = fs.DurationLong("dispatch-timeout", 2*time.Minute, "Deadline for one extraction (0 disables)")
		accountCode     = fs.StringLong("account-code", "", "Default supplier account code")
		documentType    = fs.StringLong("document-type", "Ordinary", "Default document type: Ordinary, Simplified or Rectifying")
		deducibility    = fs.StringLong("deducibility", "Full", "Default deducibility: Full, None or Prorated")
		ledgerSide      = fs.StringLong("ledger-side", "Debit", "Default ledger side: Debit or Credit")
		schema          = fs.StringLong("export-schema", "ivs", "Export schema: 'ivs' or 'simple'")
		format          = fs.StringLong("export-format", "csv", "Export format: 'csv' or 'xlsx'")
		sequence        = fs.StringLong("export-sequence", "auto", "Row numbers: 'auto' or 'omit'")
		lineEnding      = fs.StringLong("export-line-ending", "crlf", "Delimited line ending: 'crlf' or 'lf'")
		noHeaders       = fs.BoolLong("export-no-headers", "Leave out the header row")
		currencySuffix  = fs.StringLong("export-currency-suffix", "", "Currency suffix for spreadsheet money cells, e.g. €")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(envPrefix)); err != nil {
		return nil, fs, err
	}

	cfg := &config{
		port:            *port,
		dbPath:          strings.TrimSpace(*dbPath),
		storagePath:     strings.TrimSpace(*storagePath),
		scanner:         strings.ToLower(strings.TrimSpace(*scannerType)),
		geminiKey:       fallback(*geminiKey, getenv("GEMINI_API_KEY")),
		geminiModel:     *geminiModel,
		ollamaURL:       *ollamaURL,
		ollamaModel:     *ollamaModel,
		mistralKey:      fallback(*mistralKey, getenv("MISTRAL_API_KEY")),
		mistralModel:    *mistralModel,
		anthropicKey:    fallback(*anthropicKey, getenv("ANTHROPIC_API_KEY")),
		anthropicModel:  *anthropicModel,
		extractURL:      *extractURL,
		dispatchTimeout: *dispatchTimeout,
		auth:            api.BasicAuth{Username: *authUser, Password: *authPass},
		showVersion:     *showVersion,
	}
	if cfg.showVersion {
		return cfg, fs, nil
	}

	var err error
	cfg.settings.ProviderAccountCodeDefault = strings.TrimSpace(*accountCode)
	if cfg.settings.DocumentType, err = invoice.ParseDocumentType(*documentType); err != nil {
		return nil, fs, err
	}
	if cfg.settings.DeducibilityMode, err = invoice.ParseDeducibility(*deducibility); err != nil {
		return nil, fs, err
	}
	if cfg.settings.LedgerSide, err = invoice.ParseLedgerSide(*ledgerSide); err != nil {
		return nil, fs, err
	}

	cfg.profile = ledger.DefaultProfile()
	if cfg.profile.Schema, err = ledger.ParseSchema(*schema); err != nil {
		return nil, fs, err
	}
	if cfg.profile.Format, err = ledger.ParseFormat(*format); err != nil {
		return nil, fs, err
	}
	if cfg.profile.Sequence, err = ledger.ParseSequence(*sequence); err != nil {
		return nil, fs, err
	}
	if cfg.profile.LineEnding, err = ledger.ParseLineEnding(*lineEnding); err != nil {
		return nil, fs, err
	}
	cfg.profile.Headers = !*noHeaders
	cfg.profile.CurrencySuffix = *currencySuffix

	switch cfg.scanner {
	case "pipeline", "gemini", "ollama", "remote":
	default:
		return nil, fs, fmt.Errorf("invalid scanner type %q: valid are pipeline, gemini, ollama or remote", *scannerType)
	}
	return cfg, fs, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
