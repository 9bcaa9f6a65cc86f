package invoice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-parser/internal/imaging"
	"github.com/zombor/invoice-parser/internal/logging"
)

// Parser turns an uploaded document into a ParsedInvoice
type Parser interface {
	Parse(ctx context.Context, doc *UploadedDocument) (*ParsedInvoice, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service parses invoices and archives the results
type Service struct {
	parser      Parser
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with uuid IDs and the wall clock
func NewService(parser Parser, db DB, storage Storage) *Service {
	return NewServiceWithDeps(parser, db, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(parser Parser, db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		parser:      parser,
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and truncates long names
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}
	if ext = unsafeFilenameChars.ReplaceAllString(ext, ""); ext != "" {
		ext = "." + ext
	}
	return base + ext
}

// ParseInvoice parses doc and archives the result. Archive failures are
// logged and do not fail the parse.
func (s *Service) ParseInvoice(ctx context.Context, doc *UploadedDocument) (*ParsedInvoice, error) {
	parsed, err := s.parser.Parse(ctx, doc)
	if err != nil {
		return nil, err
	}

	if _, err := s.archive(context.WithoutCancel(ctx), doc, parsed); err != nil {
		logging.FromContext(ctx).Warn("Failed to archive parsed invoice",
			"file_name", doc.Filename,
			"file_hash", parsed.FileHash,
			"error", err,
		)
	}
	return parsed, nil
}

// archive upserts the record for parsed, keyed by its fingerprint
func (s *Service) archive(ctx context.Context, doc *UploadedDocument, parsed *ParsedInvoice) (*Record, error) {
	now := s.timeSource.Now()

	existing, err := s.db.FindByFingerprint(parsed.FileHash)
	switch {
	case err == nil:
		existing.Invoice = parsed
		existing.UpdatedAt = now
		if err := s.db.SaveRecord(existing); err != nil {
			return nil, fmt.Errorf("updating record: %w", err)
		}
		return existing, nil
	case !errors.Is(err, ErrRecordNotFound):
		return nil, fmt.Errorf("looking up fingerprint: %w", err)
	}

	id := s.idGenerator.Generate()
	key, err := s.storage.Save(ctx, fmt.Sprintf("%s_%s", id, sanitizeFilename(doc.Filename)), doc.Data, doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	pages, err := imaging.PageCount(doc.Data, doc.ContentType)
	if err != nil {
		logging.FromContext(ctx).Warn("Failed to count pages", "file_name", doc.Filename, "error", err)
	}

	record := &Record{
		ID:          id,
		Fingerprint: parsed.FileHash,
		Filename:    key,
		ContentType: imaging.NormalizeContentType(doc.ContentType),
		PageCount:   pages,
		Invoice:     parsed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.SaveRecord(record); err != nil {
		s.storage.Delete(ctx, key)
		return nil, fmt.Errorf("saving record: %w", err)
	}
	return record, nil
}

// GetRecord retrieves an archived record by ID
func (s *Service) GetRecord(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns all archived records, newest first
func (s *Service) ListRecords() ([]*Record, error) {
	records, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteRecord removes a record and its stored file
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}

	if err := s.storage.Delete(ctx, record.Filename); err != nil {
		logging.FromContext(ctx).Warn("Failed to delete file", "filename", record.Filename, "error", err)
	}

	if err := s.db.DeleteRecord(id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// GetRecordFile retrieves the original upload for a record
func (s *Service) GetRecordFile(ctx context.Context, id string) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}

	data, err := s.storage.Get(ctx, record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting record file: %w", err)
	}
	return data, record.ContentType, nil
}

// GetRecordPreview renders the first page of a record's original upload as PNG
func (s *Service) GetRecordPreview(ctx context.Context, id string) ([]byte, error) {
	data, contentType, err := s.GetRecordFile(ctx, id)
	if err != nil {
		return nil, err
	}

	png, err := imaging.ToPNG(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("rendering preview: %w", err)
	}
	return png, nil
}
