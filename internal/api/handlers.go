package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/invoice-ledger/internal/ingest"
	"github.com/zombor/invoice-ledger/internal/invoice"
	"github.com/zombor/invoice-ledger/internal/ledger"
	"github.com/zombor/invoice-ledger/internal/scanning"
)

// maxFormSize allows high-resolution phone photos and multi-page PDFs
const maxFormSize = int64(50 << 20)

const structuringParseError = "Error parsing JSON from structuring model"

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes {"error": message}
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// parseForm reads a multipart upload and reports a user facing message on failure
func parseForm(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "File is too large. Maximum size is 50MB.", false
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return "No file provided", false
		}
		return "Error parsing form", false
	}
	return "", true
}

// readUpload reads one uploaded file and works out its content type
func readUpload(header *multipart.FileHeader) ([]byte, string, error) {
	f, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("reading upload: %w", err)
	}
	return data, detectContentType(header.Filename, header.Header.Get("Content-Type")), nil
}

func detectContentType(filename, declared string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// uploadHints are the extraction hints sent alongside an upload
type uploadHints struct {
	ProviderCode  string
	DocumentType  invoice.DocumentType
	Deductibility invoice.Deducibility
}

func readHints(r *http.Request) (uploadHints, error) {
	var h uploadHints
	var err error
	h.ProviderCode = strings.TrimSpace(r.FormValue("providerCode"))
	if h.DocumentType, err = invoice.ParseDocumentType(r.FormValue("docType")); err != nil {
		return h, err
	}
	if h.Deductibility, err = invoice.ParseDeducibility(r.FormValue("deductibility")); err != nil {
		return h, err
	}
	return h, nil
}

// handleExtract extracts the fields of one document synchronously, outside the queue
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if msg, ok := parseForm(w, r); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	_, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	hints, err := readHints(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, contentType, err := readUpload(header)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	if s.opts.Scanner == nil {
		writeError(w, http.StatusInternalServerError, "Extraction service not configured")
		return
	}

	ctx := r.Context()
	if s.opts.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ExtractTimeout)
		defer cancel()
	}

	fields, err := s.opts.Scanner.ScanInvoice(ctx, scanning.Request{
		Filename:      header.Filename,
		ContentType:   contentType,
		Data:          data,
		ProviderCode:  hints.ProviderCode,
		DocumentType:  hints.DocumentType,
		Deductibility: hints.Deductibility,
	})
	if err != nil {
		var perr *scanning.ParseError
		if errors.As(err, &perr) {
			slog.Warn("Structured data could not be parsed", "filename", header.Filename, "error", err)
			fields = perr.Fields()
			fields.Error = structuringParseError
			writeJSON(w, http.StatusOK, fields)
			return
		}
		slog.Error("Error extracting invoice", "filename", header.Filename, "content_type", contentType, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, fields)
}

// exportItem is one invoice of an export request, either the bare fields or
// {"filename": ..., "data": fields}
type exportItem struct {
	Filename string
	Fields   invoice.Fields
}

func (it *exportItem) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Filename string          `json:"filename"`
		Data     *invoice.Fields `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	it.Filename = wrapped.Filename
	if wrapped.Data != nil {
		it.Fields = *wrapped.Data
		return nil
	}
	return json.Unmarshal(data, &it.Fields)
}

// handleExport renders the invoices of the request body as a ledger file
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Invoices []exportItem    `json:"invoices"`
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body.Invoices) == 0 {
		writeError(w, http.StatusBadRequest, "No invoices provided")
		return
	}

	settings, err := s.settings(body.Settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates := make([]ledger.Candidate, len(body.Invoices))
	for i := range body.Invoices {
		candidates[i] = ledger.Candidate{Filename: body.Invoices[i].Filename, Fields: &body.Invoices[i].Fields}
	}
	s.export(w, r, candidates, settings, nil)
}

// settings overlays the request settings on the configured defaults
func (s *Server) settings(raw json.RawMessage) (invoice.Settings, error) {
	settings := s.opts.Settings
	if len(raw) == 0 || string(raw) == "null" {
		return settings, nil
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

// exporter applies the format, schema and sequence query parameters to the configured profile
func (s *Server) exporter(r *http.Request) (*ledger.Exporter, error) {
	profile := s.opts.Exporter.Profile()
	q := r.URL.Query()
	var err error
	if v := q.Get("format"); v != "" {
		if profile.Format, err = ledger.ParseFormat(v); err != nil {
			return nil, err
		}
	}
	if v := q.Get("schema"); v != "" {
		if profile.Schema, err = ledger.ParseSchema(v); err != nil {
			return nil, err
		}
	}
	if v := q.Get("sequence"); v != "" {
		if profile.Sequence, err = ledger.ParseSequence(v); err != nil {
			return nil, err
		}
	}
	return s.opts.Exporter.WithProfile(profile), nil
}

// export validates and renders candidates and writes the file. after runs once
// the export has succeeded.
func (s *Server) export(w http.ResponseWriter, r *http.Request, candidates []ledger.Candidate, settings invoice.Settings, after func()) {
	exporter, err := s.exporter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := exporter.Export(candidates, settings)
	if err != nil {
		var verr *ledger.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Some invoices are missing the date or the total",
				"invalid": verr.Filenames,
			})
		case errors.Is(err, ledger.ErrNoInvoices):
			writeError(w, http.StatusBadRequest, "No invoices provided")
		default:
			slog.Error("Error exporting ledger", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if after != nil {
		after()
	}

	w.Header().Set("Content-Type", payload.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, payload.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload.Body); err != nil {
		slog.Error("Error writing export", "error", err)
	}
}

// candidates turns queue records into export candidates named by their filenames
func candidates(records []ingest.Record) []ledger.Candidate {
	out := make([]ledger.Candidate, 0, len(records))
	for _, rec := range records {
		if rec.Status != ingest.StatusSucceeded {
			continue
		}
		out = append(out, ledger.Candidate{Filename: rec.Document.Filename, Fields: rec.Fields})
	}
	return out
}
