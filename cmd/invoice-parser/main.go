package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-parser/internal/extraction"
	"github.com/zombor/invoice-parser/internal/invoice"
	"github.com/zombor/invoice-parser/internal/logging"
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

	fs := ff.NewFlagSet("invoice-parser")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		endpoint     = fs.StringLong("endpoint", "", "Document Intelligence endpoint (or set AZURE_DOCUMENT_INTELLIGENCE_ENDPOINT)")
		key          = fs.StringLong("key", "", "Document Intelligence key (or set AZURE_DOCUMENT_INTELLIGENCE_KEY)")
		model        = fs.StringLong("model", extraction.DefaultModelID, "Document Intelligence model ID")
		backendType  = fs.StringLong("backend", extraction.BackendDocIntel, "Extraction backend: 'docintel' or 'gemini'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", extraction.DefaultGeminiModel, "Google Gemini model name")
		maxSizeMB    = fs.IntLong("max-size-mb", 50, "Maximum upload size in MB")
		pollInterval = fs.DurationLong("poll-interval", extraction.DefaultPollInterval, "Interval between analyze status checks")
		maxWait      = fs.DurationLong("max-wait", extraction.DefaultMaxWait, "Maximum time to wait for an analysis")
		dbPath       = fs.StringLong("db", "invoice-parser.db", "Database file path")
		storageType  = fs.StringLong("storage", "local", "Storage type: 'local' or 'minio'")
		storagePath  = fs.StringLong("storage-path", "./invoices", "Storage directory path")
		minioURL     = fs.StringLong("minio-endpoint", "localhost:9000", "MinIO endpoint")
		minioAccess  = fs.StringLong("minio-access-key", "", "MinIO access key")
		minioSecret  = fs.StringLong("minio-secret-key", "", "MinIO secret key")
		minioBucket  = fs.StringLong("minio-bucket", "invoices", "MinIO bucket")
		minioSSL     = fs.BoolLong("minio-ssl", "Use TLS for MinIO")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		logFormat    = fs.StringLong("log-format", "text", "Log format: text or json")
		_            = fs.StringLong("config", "", "Config file path (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_PARSER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logging.Init(logging.Config{Level: *logLevel, Format: *logFormat}, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := invoice.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize extraction backend
	if *geminiKey == "" {
		*geminiKey = os.Getenv("GEMINI_API_KEY")
	}
	backend, err := extraction.New(ctx, extraction.Config{
		Backend: *backendType,
		DocIntel: extraction.DocIntelConfig{
			Endpoint: firstNonEmpty(*endpoint, os.Getenv("AZURE_DOCUMENT_INTELLIGENCE_ENDPOINT")),
			Key:      firstNonEmpty(*key, os.Getenv("AZURE_DOCUMENT_INTELLIGENCE_KEY")),
			ModelID:  *model,
		},
		GeminiKey:   *geminiKey,
		GeminiModel: *geminiModel,
	})
	if err != nil {
		slog.Error("Failed to initialize extraction backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	slog.Info("Extraction backend ready", "backend", *backendType)

	// Initialize storage
	var store invoice.Storage
	switch *storageType {
	case "local":
		slog.Info("Initializing local storage...", "path", *storagePath)
		store, err = invoice.NewLocalStorage(*storagePath)
	case "minio":
		slog.Info("Initializing MinIO storage...", "endpoint", *minioURL, "bucket", *minioBucket)
		store, err = invoice.NewMinioStorage(ctx, invoice.MinioConfig{
			Endpoint:  *minioURL,
			AccessKey: *minioAccess,
			SecretKey: *minioSecret,
			Bucket:    *minioBucket,
			UseSSL:    *minioSSL,
		})
	default:
		err = fmt.Errorf("invalid storage type %q (valid: local or minio)", *storageType)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	maxSize := int64(*maxSizeMB) << 20
	pipeline := invoice.NewPipeline(backend, invoice.Options{
		Limits:       invoice.Limits{MaxSize: maxSize, AllowedTypes: invoice.DefaultAllowedTypes},
		PollInterval: *pollInterval,
		MaxWait:      *maxWait,
	})
	service := invoice.NewService(pipeline, db, store)

	basicAuth := invoice.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := invoice.NewServer(service, basicAuth, maxSize)

	addr := fmt.Sprintf(":%d", *port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
