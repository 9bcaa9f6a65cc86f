package invoice

import "errors"

// Reason identifies which validation rule rejected a document
type Reason string

const (
	ReasonMissingFile     Reason = "MissingFile"
	ReasonUnsupportedType Reason = "UnsupportedType"
	ReasonTooLarge        Reason = "TooLarge"
	ReasonEmptyFile       Reason = "EmptyFile"
)

// ValidationError is returned when an uploaded document is rejected before extraction
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	// ErrNoDocumentsFound is returned when the analysis result contains no documents
	ErrNoDocumentsFound = errors.New("no documents found in the analysis result")

	// ErrNoInvoiceDocument is returned when the first document slot is empty
	ErrNoInvoiceDocument = errors.New("expected at least one invoice in the result")

	// ErrRecordNotFound is returned when an archived record does not exist
	ErrRecordNotFound = errors.New("record not found")
)
