package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/zombor/invoice-parser/internal/extraction"
)

// Map converts the first analyzed document in result into a ParsedInvoice.
// Metadata comes from doc and fingerprint, never from the service. A field
// that is malformed or lacks a confidence in [0,1] is left out; it never
// fails the mapping.
func Map(result *extraction.AnalysisResult, doc *UploadedDocument, fingerprint string) (*ParsedInvoice, error) {
	if result == nil || len(result.Documents) == 0 {
		return nil, ErrNoDocumentsFound
	}
	source := result.Documents[0]
	if source == nil {
		return nil, ErrNoInvoiceDocument
	}

	parsed := &ParsedInvoice{
		DocType:    source.DocType,
		Confidence: source.Confidence,
		FileHash:   fingerprint,
		Items:      LineItems{Values: []LineItem{}},
	}
	if doc != nil {
		parsed.FileName = doc.Filename
		parsed.FileSize = doc.Size
		if parsed.FileSize == 0 {
			parsed.FileSize = int64(len(doc.Data))
		}
	}

	copyFields(parsed, source.Fields, invoiceFields)
	parsed.Items.Values = mapLineItems(source.Fields[itemsField])

	return parsed, nil
}

func copyFields[P any](target P, fields map[string]json.RawMessage, descriptors []descriptor[P]) {
	for _, d := range descriptors {
		raw, ok := fields[d.name]
		if !ok {
			continue
		}
		field, err := usableField(raw)
		if err != nil {
			slog.Debug("Skipping extracted field", "field", d.name, "error", err)
			continue
		}
		d.assign(target, field)
	}
}

// usableField decodes raw and checks that it carries a valid confidence
func usableField(raw json.RawMessage) (*extraction.DocumentField, error) {
	field, err := extraction.DecodeField(raw)
	if err != nil {
		return nil, err
	}
	if field.Confidence == nil {
		return nil, errors.New("missing confidence")
	}
	if c := *field.Confidence; math.IsNaN(c) || c < 0 || c > 1 {
		return nil, fmt.Errorf("confidence %v out of range", c)
	}
	return field, nil
}

func mapLineItems(raw json.RawMessage) []LineItem {
	items := []LineItem{}
	if raw == nil {
		return items
	}

	field, err := extraction.DecodeField(raw)
	if err != nil {
		slog.Debug("Skipping extracted field", "field", itemsField, "error", err)
		return items
	}

	for i, rawItem := range field.ValueArray {
		element, err := extraction.DecodeField(rawItem)
		if err != nil {
			slog.Debug("Skipping line item", "index", i, "error", err)
			continue
		}
		var line LineItem
		copyFields(&line, element.ValueObject, lineItemFields)
		items = append(items, line)
	}
	return items
}
