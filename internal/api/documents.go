package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/invoice-ledger/internal/ingest"
	"github.com/zombor/invoice-ledger/internal/invoice"
)

// queueError maps queue and field errors to a status code
func queueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		writeError(w, http.StatusNotFound, "Document not found")
	case errors.Is(err, ingest.ErrProcessing):
		writeError(w, http.StatusConflict, "Document is still being processed")
	case errors.Is(err, ingest.ErrNotFailed):
		writeError(w, http.StatusConflict, "Only failed documents can be resubmitted")
	case errors.Is(err, invoice.ErrUnknownField), errors.Is(err, invoice.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Error updating queue", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleUploadDocuments queues every uploaded file for extraction
func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	if msg, ok := parseForm(w, r); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	hints, err := readHints(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	docs := make([]ingest.Document, 0, len(headers))
	for _, header := range headers {
		data, contentType, err := readUpload(header)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}
		docs = append(docs, ingest.Document{
			Filename:      header.Filename,
			ContentType:   contentType,
			Data:          data,
			ProviderCode:  hints.ProviderCode,
			DocumentType:  hints.DocumentType,
			Deductibility: hints.Deductibility,
		})
	}

	created := make([]ingest.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := s.opts.Queue.Get(s.opts.Queue.Enqueue(doc))
		if err != nil {
			// removed before we could read it back
			continue
		}
		created = append(created, rec)
	}
	writeJSON(w, http.StatusAccepted, created)
}

// handleListDocuments returns every record in submission order
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Queue.Records())
}

// handleGetDocument returns a single record
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := s.opts.Queue.Get(r.PathValue("id"))
	if err != nil {
		queueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetDocumentFile returns the uploaded bytes for preview
func (s *Server) handleGetDocumentFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.opts.Queue.Get(r.PathValue("id"))
	if err != nil {
		queueError(w, err)
		return
	}
	if rec.Document.Data == nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", rec.Document.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, strings.ReplaceAll(rec.Document.Filename, `"`, "")))
	w.Write(rec.Document.Data)
}

type fieldUpdate struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// text accepts a JSON string, a number or null
func (u fieldUpdate) text() (string, error) {
	raw := bytes.TrimSpace(u.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: %s", invoice.ErrInvalidValue, raw)
	}
	return n.String(), nil
}

// handleUpdateDocument overwrites one extracted field
func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var update fieldUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	field, err := invoice.ParseField(update.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := update.text()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	if err := s.opts.Queue.UpdateField(id, field, value); err != nil {
		queueError(w, err)
		return
	}
	rec, err := s.opts.Queue.Get(id)
	if err != nil {
		queueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleResubmitDocument queues a failed document again
func (s *Server) handleResubmitDocument(w http.ResponseWriter, r *http.Request) {
	id, err := s.opts.Queue.Resubmit(r.PathValue("id"))
	if err != nil {
		queueError(w, err)
		return
	}
	rec, err := s.opts.Queue.Get(id)
	if err != nil {
		queueError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

// handleDeleteDocument removes one record
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Queue.Remove(r.PathValue("id")); err != nil {
		queueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearDocuments removes every record
func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	s.opts.Queue.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSelection returns the previewed record, or 204 when none is selected
func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.opts.Queue.Selection()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleSetSelection selects the record named by {"id": ...}
func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeError(w, http.StatusBadRequest, "Document ID required")
		return
	}
	if err := s.opts.Queue.Select(body.ID); err != nil {
		queueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportDocuments exports the succeeded records of the queue. With
// ?clear=true the queue is emptied once the file has been produced.
func (s *Server) handleExportDocuments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Settings json.RawMessage `json:"settings"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	settings, err := s.settings(body.Settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var after func()
	if r.URL.Query().Get("clear") == "true" {
		after = s.opts.Queue.Clear
	}
	s.export(w, r, candidates(s.opts.Queue.Succeeded()), settings, after)
}
