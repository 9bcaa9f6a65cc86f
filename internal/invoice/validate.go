package invoice

import (
	"fmt"
	"strconv"

	"github.com/zombor/invoice-parser/internal/imaging"
)

const (
	mib = 1 << 20

	// DefaultMaxSize is the default upload ceiling
	DefaultMaxSize = 50 * mib
)

// DefaultAllowedTypes lists the accepted media types, including the jpg and tif aliases
var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/bmp",
	"image/tiff",
	"image/tif",
}

// Limits bounds what the validator accepts
type Limits struct {
	MaxSize      int64
	AllowedTypes []string
}

// DefaultLimits returns the 50 MiB ceiling and the default type set
func DefaultLimits() Limits {
	return Limits{
		MaxSize:      DefaultMaxSize,
		AllowedTypes: DefaultAllowedTypes,
	}
}

// Validate checks doc against limits. Rules apply in order and the first failure wins:
// missing file, unsupported type, too large, empty.
func Validate(doc *UploadedDocument, limits Limits) error {
	if doc == nil {
		return &ValidationError{
			Reason:  ReasonMissingFile,
			Message: "No file provided. Please include a file in the request.",
		}
	}

	if !limits.allows(doc.ContentType) {
		received := doc.ContentType
		if received == "" {
			received = "unknown"
		}
		return &ValidationError{
			Reason:  ReasonUnsupportedType,
			Message: fmt.Sprintf("Invalid file type. Supported types for invoices/receipts: PDF, PNG, JPEG, BMP, TIFF. Received: %s", received),
		}
	}

	size := doc.Size
	if n := int64(len(doc.Data)); n > size {
		size = n
	}
	if size > limits.MaxSize {
		return newTooLargeError(limits.MaxSize, size)
	}

	if size == 0 {
		return &ValidationError{
			Reason:  ReasonEmptyFile,
			Message: "File is empty. Please provide a valid file.",
		}
	}

	return nil
}

func (l Limits) allows(contentType string) bool {
	mimeType := imaging.NormalizeContentType(contentType)
	if mimeType == "" {
		return false
	}
	for _, allowed := range l.AllowedTypes {
		if imaging.NormalizeContentType(allowed) == mimeType {
			return true
		}
	}
	return false
}

// newTooLargeError reports size against limit. A non-positive size omits the actual size.
func newTooLargeError(limit, size int64) *ValidationError {
	msg := fmt.Sprintf("File size exceeds maximum allowed size of %sMB.", strconv.FormatFloat(float64(limit)/mib, 'f', -1, 64))
	if size > 0 {
		msg += fmt.Sprintf(" File size: %.2fMB", float64(size)/mib)
	}
	return &ValidationError{Reason: ReasonTooLarge, Message: msg}
}
