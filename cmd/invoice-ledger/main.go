package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-ledger/internal/api"
	"github.com/zombor/invoice-ledger/internal/ingest"
	"github.com/zombor/invoice-ledger/internal/ledger"
	"github.com/zombor/invoice-ledger/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	cfg, fs, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(cfg); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the queue and HTTP server and blocks until a signal or a server
// failure. The queue worker has returned before the store is closed.
func run(cfg *config) error {
	if err := cfg.profile.Validate(); err != nil {
		return fmt.Errorf("invalid export profile: %w", err)
	}

	scanner, err := newScanner(cfg)
	if err != nil {
		return fmt.Errorf("initializing scanner: %w", err)
	}
	defer scanner.Close()

	queueCfg := ingest.Config{DispatchTimeout: cfg.dispatchTimeout}

	if cfg.dbPath != "" {
		slog.Info("Initializing database...", "path", cfg.dbPath)
		db, err := ingest.NewBoltStore(cfg.dbPath)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		defer db.Close()
		queueCfg.Store = db
	}

	if cfg.storagePath != "" {
		slog.Info("Initializing storage...", "path", cfg.storagePath)
		storage, err := ingest.NewLocalStorage(cfg.storagePath)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		queueCfg.Storage = storage
	}

	queue := ingest.NewQueue(scanner, queueCfg)
	if err := queue.Restore(); err != nil {
		return fmt.Errorf("restoring queue: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		queue.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		<-workerDone
	}()

	server := api.NewServer(api.Options{
		Queue:          queue,
		Scanner:        scanner,
		Exporter:       ledger.NewExporter(cfg.profile),
		Settings:       cfg.settings,
		ExtractTimeout: cfg.dispatchTimeout,
		BasicAuth:      cfg.auth,
	})

	addr := fmt.Sprintf(":%d", cfg.port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if cfg.auth.Username != "" || cfg.auth.Password != "" {
		slog.Info("Basic auth enabled", "user", cfg.auth.Username)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("serving http: %w", err)
		}
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
	return runErr
}

// newScanner builds the configured extraction collaborator. Missing credentials
// do not stop the server; every document then fails with a configuration error.
func newScanner(cfg *config) (scanning.Scanner, error) {
	switch cfg.scanner {
	case "gemini":
		if cfg.geminiKey == "" {
			slog.Warn("Gemini API key is not set. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			return &scanning.Unconfigured{Setting: "GEMINI_API_KEY"}, nil
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		scanner, err := scanning.NewGemini(cfg.geminiKey, cfg.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return scanner, nil
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel), nil
	case "remote":
		if cfg.extractURL == "" {
			slog.Warn("Extraction URL is not set. Set --extract-url flag")
		}
		slog.Info("Initializing remote scanner...", "url", cfg.extractURL)
		return scanning.NewRemote(cfg.extractURL, cfg.dispatchTimeout), nil
	case "pipeline":
		if cfg.mistralKey == "" || cfg.anthropicKey == "" {
			slog.Warn("Pipeline keys are incomplete. Set MISTRAL_API_KEY and ANTHROPIC_API_KEY")
		}
		slog.Info("Initializing pipeline scanner...", "ocr", cfg.mistralModel, "structuring", cfg.anthropicModel)
		return scanning.NewPipeline(scanning.PipelineConfig{
			MistralKey:     cfg.mistralKey,
			MistralModel:   cfg.mistralModel,
			AnthropicKey:   cfg.anthropicKey,
			AnthropicModel: cfg.anthropicModel,
			Timeout:        cfg.dispatchTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("invalid scanner type %q", cfg.scanner)
	}
}
