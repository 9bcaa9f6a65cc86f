package invoice

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/zombor/invoice-parser/internal/extraction"
	"github.com/zombor/invoice-parser/internal/imaging"
	"github.com/zombor/invoice-parser/internal/logging"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type parseResponse struct {
	Success bool           `json:"success"`
	Data    *ParsedInvoice `json:"data"`
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("Error encoding response", "error", err)
	}
}

// writeParseError is the one place that maps pipeline failures to HTTP responses
func writeParseError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())

	var (
		validationErr *ValidationError
		serviceErr    *extraction.ServiceError
		transportErr  *extraction.TransportError
		failedErr     *extraction.OperationFailedError
	)
	switch {
	case errors.As(err, &validationErr):
		logger.Warn("Rejected upload", "reason", validationErr.Reason, "error", err)
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: validationErr.Message})

	case errors.Is(err, extraction.ErrNotConfigured):
		logger.Error("Extraction service is not configured", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{
			Error:   "Document extraction service is not properly configured",
			Details: err.Error(),
		})

	case errors.As(err, &serviceErr), errors.As(err, &transportErr), errors.As(err, &failedErr), errors.Is(err, extraction.ErrPollTimeout):
		logger.Error("Extraction service failed", "error", err)
		writeJSON(w, r, http.StatusBadGateway, errorResponse{
			Error:   "Failed to process invoice with the document extraction service",
			Details: err.Error(),
		})

	case errors.Is(err, ErrNoDocumentsFound), errors.Is(err, ErrNoInvoiceDocument):
		logger.Warn("No invoice found in document", "error", err)
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Error:   "Could not extract invoice data from the provided file. Please ensure the file contains a valid invoice.",
			Details: err.Error(),
		})

	default:
		logger.Error("Error processing invoice", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{
			Error:   "An error occurred while processing the invoice",
			Details: err.Error(),
		})
	}
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleParseInvoice accepts a multipart upload in the "file" field and parses it
func (s *Server) handleParseInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeParseError(w, r, newTooLargeError(s.maxUploadSize, r.ContentLength))
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			logging.FromContext(r.Context()).Warn("Error parsing multipart form", "error", err)
			writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Invalid form data", Details: err.Error()})
			return
		}
	}

	doc, err := uploadedDocument(r)
	if err != nil {
		logging.FromContext(r.Context()).Error("Error reading file data", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Error reading file. Please try again."})
		return
	}

	parsed, err := s.service.ParseInvoice(r.Context(), doc)
	if err != nil {
		writeParseError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, parseResponse{Success: true, Data: parsed})
}

// uploadedDocument reads the "file" form field. A missing field yields a nil document.
func uploadedDocument(r *http.Request) (*UploadedDocument, error) {
	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	contentType := imaging.NormalizeContentType(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := imaging.ContentTypeFromFilename(header.Filename); guessed != "" {
			contentType = guessed
		}
	}

	return &UploadedDocument{
		Data:        data,
		ContentType: contentType,
		Size:        header.Size,
		Filename:    header.Filename,
	}, nil
}

// handleListInvoices returns all archived records
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords()
	if err != nil {
		logging.FromContext(r.Context()).Error("Error listing records", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}

// handleGetInvoice returns a single archived record
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, record)
}

// handleGetInvoiceFile returns the original upload for a record
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetRecordFile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleGetInvoicePreview returns a PNG of the first page of a record's upload
func (s *Server) handleGetInvoicePreview(w http.ResponseWriter, r *http.Request) {
	png, err := s.service.GetRecordPreview(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", imaging.MimePNG)
	w.Write(png)
}

// handleDeleteInvoice deletes a record and its file
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.Context(), r.PathValue("id")); err != nil {
		writeLookupError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportInvoices returns the archive as an XLSX workbook
func (s *Server) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("Error exporting records", "error", err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.Write(data)
}

// writeLookupError maps archive lookups to 404 or 500
func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrRecordNotFound) {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "Invoice not found"})
		return
	}
	logging.FromContext(r.Context()).Error("Error reading record", "error", err)
	writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}
