package invoice

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-parser/internal/extraction"
	"github.com/zombor/invoice-parser/internal/logging"
)

// Options tunes the Pipeline
type Options struct {
	Limits       Limits
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Pipeline validates, fingerprints, extracts and maps a single document
type Pipeline struct {
	backend extraction.Backend
	poller  *extraction.Poller
	limits  Limits
}

// NewPipeline creates a Pipeline over backend. A zero MaxSize uses DefaultLimits.
func NewPipeline(backend extraction.Backend, opts Options) *Pipeline {
	limits := opts.Limits
	if limits.MaxSize <= 0 {
		limits.MaxSize = DefaultMaxSize
	}
	if len(limits.AllowedTypes) == 0 {
		limits.AllowedTypes = DefaultAllowedTypes
	}
	return &Pipeline{
		backend: backend,
		poller:  extraction.NewPoller(backend, opts.PollInterval, opts.MaxWait),
		limits:  limits,
	}
}

// Limits returns the validation limits in effect
func (p *Pipeline) Limits() Limits {
	return p.limits
}

// Parse runs the document through validation, extraction and mapping.
// Hashing runs alongside the extraction call.
func (p *Pipeline) Parse(ctx context.Context, doc *UploadedDocument) (*ParsedInvoice, error) {
	if err := Validate(doc, p.limits); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).With("file_name", doc.Filename, "content_type", doc.ContentType, "file_size", doc.Size)
	start := time.Now()

	var (
		fingerprint string
		result      *extraction.AnalysisResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fingerprint = Fingerprint(doc.Data)
		return nil
	})
	g.Go(func() error {
		op, err := p.backend.Submit(gctx, doc.Data, doc.ContentType)
		if err != nil {
			return fmt.Errorf("submitting document: %w", err)
		}
		logger.Debug("Awaiting analysis", "operation", op.ID)
		result, err = p.poller.Await(gctx, op)
		if err != nil {
			return fmt.Errorf("awaiting analysis: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parsed, err := Map(result, doc, fingerprint)
	if err != nil {
		return nil, err
	}

	logger.Info("Parsed invoice",
		"file_hash", fingerprint,
		"fields", len(parsed.Populated()),
		"line_items", len(parsed.Items.Values),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return parsed, nil
}
