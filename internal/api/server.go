package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zombor/invoice-ledger/internal/ingest"
	"github.com/zombor/invoice-ledger/internal/invoice"
	"github.com/zombor/invoice-ledger/internal/ledger"
	"github.com/zombor/invoice-ledger/internal/scanning"
)

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Options holds the collaborators of a Server
type Options struct {
	Queue    *ingest.Queue
	Scanner  scanning.Scanner
	Exporter *ledger.Exporter

	// Settings are the export defaults a request body can override
	Settings invoice.Settings

	// ExtractTimeout bounds a synchronous /extract call; zero means no deadline
	ExtractTimeout time.Duration

	BasicAuth BasicAuth
}

// Server handles HTTP requests for invoice extraction, the document queue and ledger exports
type Server struct {
	opts Options
	mux  *http.ServeMux

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(opts Options) *Server {
	return NewServerWithMux(opts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(opts Options, mux *http.ServeMux) *Server {
	if opts.Exporter == nil {
		opts.Exporter = ledger.NewExporter(ledger.DefaultProfile())
	}
	s := &Server{
		opts: opts,
		mux:  mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	creds := s.opts.BasicAuth
	if creds.Username == "" && creds.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == creds.Username && credentials[1] == creds.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Invoice Ledger"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Stateless endpoints
	s.mux.HandleFunc("POST /export", s.requireAuth(s.handleExport))
	s.mux.HandleFunc("POST /extract", s.requireAuth(s.handleExtract))

	// Document queue (most specific paths first)
	s.mux.HandleFunc("GET /api/documents/{id}/file", s.requireAuth(s.handleGetDocumentFile))
	s.mux.HandleFunc("POST /api/documents/{id}/resubmit", s.requireAuth(s.handleResubmitDocument))
	s.mux.HandleFunc("POST /api/documents/export", s.requireAuth(s.handleExportDocuments))
	s.mux.HandleFunc("GET /api/documents/{id}", s.requireAuth(s.handleGetDocument))
	s.mux.HandleFunc("PATCH /api/documents/{id}", s.requireAuth(s.handleUpdateDocument))
	s.mux.HandleFunc("DELETE /api/documents/{id}", s.requireAuth(s.handleDeleteDocument))
	s.mux.HandleFunc("GET /api/documents", s.requireAuth(s.handleListDocuments))
	s.mux.HandleFunc("POST /api/documents", s.requireAuth(s.handleUploadDocuments))
	s.mux.HandleFunc("DELETE /api/documents", s.requireAuth(s.handleClearDocuments))

	s.mux.HandleFunc("GET /api/selection", s.requireAuth(s.handleGetSelection))
	s.mux.HandleFunc("PUT /api/selection", s.requireAuth(s.handleSetSelection))
	s.mux.HandleFunc("GET /api/events", s.requireAuth(s.handleEvents))
}

// Handler returns the routes wrapped with the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server and blocks until it stops. It returns nil after Shutdown.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
