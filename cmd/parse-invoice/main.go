package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"gopkg.in/yaml.v3"

	"github.com/zombor/invoice-parser/internal/extraction"
	"github.com/zombor/invoice-parser/internal/imaging"
	"github.com/zombor/invoice-parser/internal/invoice"
	"github.com/zombor/invoice-parser/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := ff.NewFlagSet("parse-invoice")
	var (
		endpoint     = fs.StringLong("endpoint", "", "Document Intelligence endpoint (or set AZURE_DOCUMENT_INTELLIGENCE_ENDPOINT)")
		key          = fs.StringLong("key", "", "Document Intelligence key (or set AZURE_DOCUMENT_INTELLIGENCE_KEY)")
		model        = fs.StringLong("model", extraction.DefaultModelID, "Document Intelligence model ID")
		backendType  = fs.StringLong("backend", extraction.BackendDocIntel, "Extraction backend: 'docintel' or 'gemini'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", extraction.DefaultGeminiModel, "Google Gemini model name")
		contentType  = fs.StringLong("content-type", "", "Content type of the file (default: from the extension)")
		pollInterval = fs.DurationLong("poll-interval", extraction.DefaultPollInterval, "Interval between analyze status checks")
		maxWait      = fs.DurationLong("max-wait", extraction.DefaultMaxWait, "Maximum time to wait for an analysis")
		format       = fs.StringLong("format", "json", "Output format: json or yaml")
		logLevel     = fs.StringLong("log-level", "warn", "Log level: debug, info, warn, error")
	)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("INVOICE_PARSER")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return err
	}
	logging.Init(logging.Config{Level: *logLevel}, os.Stderr)

	rest := fs.GetArgs()
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return errors.New("exactly one file path is required")
	}
	path := rest[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if *contentType == "" {
		*contentType = imaging.ContentTypeFromFilename(path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

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
		return err
	}
	defer backend.Close()

	pipeline := invoice.NewPipeline(backend, invoice.Options{PollInterval: *pollInterval, MaxWait: *maxWait})
	parsed, err := pipeline.Parse(ctx, &invoice.UploadedDocument{
		Data:        data,
		ContentType: *contentType,
		Size:        int64(len(data)),
		Filename:    filepath.Base(path),
	})
	if err != nil {
		return err
	}

	slog.Debug("Writing result", "format", *format, "fields", parsed.Populated())
	return write(stdout, *format, parsed)
}

func write(w io.Writer, format string, parsed *invoice.ParsedInvoice) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(parsed)
	case "yaml":
		return writeYAML(w, parsed)
	default:
		return fmt.Errorf("unknown format %q (valid: json or yaml)", format)
	}
}

// writeYAML renders parsed through its JSON form so the keys match the API output
func writeYAML(w io.Writer, parsed *invoice.ParsedInvoice) error {
	data, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("marshaling invoice: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("converting to yaml: %w", err)
	}
	resetStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

// resetStyle drops the flow style yaml infers from JSON input
func resetStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		resetStyle(child)
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
