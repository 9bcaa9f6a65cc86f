package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-parser/internal/logging"
)

const (
	invoicesSheet  = "Invoices"
	lineItemsSheet = "Line Items"
)

var (
	invoiceHeaders = []string{
		"Record ID",
		"Invoice ID",
		"Invoice Date",
		"Due Date",
		"Vendor",
		"Customer",
		"Sub Total",
		"Total Tax",
		"Invoice Total",
		"Amount Due",
		"Currency",
		"Line Items",
		"Confidence",
		"File Name",
		"File Hash",
		"Parsed At",
	}
	lineItemHeaders = []string{
		"Record ID",
		"Invoice ID",
		"Description",
		"Quantity",
		"Unit Price",
		"Tax",
		"Amount",
	}
)

// ExportXLSX writes every archived record to a workbook with one sheet of
// invoices and one of line items
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	records, err := s.ListRecords()
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", invoicesSheet); err != nil {
		return nil, fmt.Errorf("xlsx rename sheet: %w", err)
	}
	if _, err := f.NewSheet(lineItemsSheet); err != nil {
		return nil, fmt.Errorf("xlsx new sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(invoicesSheet)
	f.SetActiveSheet(activeIndex)

	writeRow(f, invoicesSheet, 1, toRow(invoiceHeaders))
	writeRow(f, lineItemsSheet, 1, toRow(lineItemHeaders))

	itemRow := 2
	for i, record := range records {
		inv := record.Invoice
		if inv == nil {
			inv = &ParsedInvoice{}
		}
		writeRow(f, invoicesSheet, i+2, []any{
			record.ID,
			content(inv.InvoiceId),
			content(inv.InvoiceDate),
			content(inv.DueDate),
			content(inv.VendorName),
			content(inv.CustomerName),
			amount(inv.SubTotal),
			amount(inv.TotalTax),
			amount(inv.InvoiceTotal),
			amount(inv.AmountDue),
			currencyCode(inv.InvoiceTotal, inv.AmountDue, inv.SubTotal),
			len(inv.Items.Values),
			inv.Confidence,
			inv.FileName,
			inv.FileHash,
			record.CreatedAt.Format(time.RFC3339),
		})

		for _, line := range inv.Items.Values {
			writeRow(f, lineItemsSheet, itemRow, []any{
				record.ID,
				content(inv.InvoiceId),
				content(line.Description),
				content(line.Quantity),
				amount(line.UnitPrice),
				amount(line.Tax),
				amount(line.Amount),
			})
			itemRow++
		}
	}

	_ = f.SetColWidth(invoicesSheet, "A", "A", 38)  // record id
	_ = f.SetColWidth(invoicesSheet, "B", "F", 20)  // identity and dates
	_ = f.SetColWidth(invoicesSheet, "N", "N", 32)  // file name
	_ = f.SetColWidth(invoicesSheet, "O", "O", 66)  // hash
	_ = f.SetColWidth(lineItemsSheet, "C", "C", 48) // description

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	logging.FromContext(ctx).Info("Exported invoices",
		"rows", len(records),
		"line_items", itemRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toRow(headers []string) []any {
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}

func content(f *Field) string {
	if f == nil {
		return ""
	}
	if f.Value != "" {
		return f.Value
	}
	return f.Content
}

// amount returns the decomposed amount when present, otherwise the raw text
func amount(f *Field) any {
	switch {
	case f == nil:
		return ""
	case f.ValueCurrency != nil:
		return f.ValueCurrency.Amount
	case f.ValueNumber != nil:
		return *f.ValueNumber
	default:
		return f.Content
	}
}

func currencyCode(fields ...*Field) string {
	for _, f := range fields {
		if f != nil && f.ValueCurrency != nil && f.ValueCurrency.CurrencyCode != "" {
			return f.ValueCurrency.CurrencyCode
		}
	}
	return ""
}
